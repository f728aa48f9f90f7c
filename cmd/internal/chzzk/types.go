package chzzk

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// envelope is the common Chzzk Open API response wrapper.
type envelope[T any] struct {
	Code    int     `json:"code"`
	Message *string `json:"message"`
	Content T       `json:"content"`
}

// Token is the result of an authorization-code exchange.
type Token struct {
	AccessToken  string  `json:"accessToken"`
	RefreshToken string  `json:"refreshToken"`
	TokenType    string  `json:"tokenType"`
	ExpiresIn    Seconds `json:"expiresIn"`
	Scope        string  `json:"scope"`
}

// Profile is the authenticated user summary from /open/v1/users/me.
type Profile struct {
	ChannelID   string `json:"channelId"`
	ChannelName string `json:"channelName"`
}

// Channel is one entry of /open/v1/channels.
type Channel struct {
	ChannelID       string `json:"channelId"`
	ChannelName     string `json:"channelName"`
	ChannelImageURL string `json:"channelImageUrl"`
	FollowerCount   int    `json:"followerCount"`
	VerifiedMark    bool   `json:"verifiedMark"`
}

type channelList struct {
	Data []Channel `json:"data"`
}

type tokenRequest struct {
	GrantType    string `json:"grantType"`
	Code         string `json:"code"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	State        string `json:"state"`
}

// Seconds decodes a lifetime sent either as a JSON number or a numeric string.
type Seconds int

func (s *Seconds) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = 0
		return nil
	}
	if b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		if str == "" {
			*s = 0
			return nil
		}
		n, err := strconv.Atoi(str)
		if err != nil {
			return fmt.Errorf("expiresIn: %w", err)
		}
		*s = Seconds(n)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	i, err := n.Int64()
	if err != nil {
		return fmt.Errorf("expiresIn: %w", err)
	}
	*s = Seconds(i)
	return nil
}
