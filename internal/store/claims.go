package store

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// authClaimNamespace is the key under which the provider nests its
// account/plan claims in both token payloads.
const authClaimNamespace = "https://api.openai.com/auth"

// Summary is the display view of one profile: id, API-key presence and
// fields derived from the stored tokens' decoded claims. Claims are decoded
// without signature verification and are display data only; this system never
// authorizes based on them.
type Summary struct {
	ID               string  `json:"id"`
	HasAPIKey        bool    `json:"hasApiKey"`
	Email            *string `json:"email"`
	PlanType         *string `json:"planType"`
	ExpiresAt        *string `json:"expiresAt"`
	AccessTokenLast4 *string `json:"accessTokenLast4"`
	AccountID        *string `json:"accountId"`
	LastRefresh      *string `json:"lastRefresh"`
	OpenAIUserType   *string `json:"openaiUserType"`
	OpenAIUserSub    *string `json:"openaiUserSub"`
	OpenAIAPIKey     *string `json:"openaiApiKey"`

	// Raw decoded claim payloads for detail views.
	IDTokenClaims     map[string]any `json:"idToken"`
	AccessTokenClaims map[string]any `json:"accessToken"`
}

// DecodeClaims decodes the payload segment of a JWT-shaped token string
// without verifying its signature. Decoding is best-effort: an empty string,
// wrong segment count, or any decode error yields nil, never an error.
func DecodeClaims(token string) map[string]any {
	if token == "" {
		return nil
	}
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithPaddingAllowed())
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil
	}
	return claims
}

// Summarize derives the display summary for a profile record.
func Summarize(id string, auth *AuthFile) Summary {
	s := Summary{ID: id, HasAPIKey: auth.OpenAIAPIKey != ""}
	if auth.OpenAIAPIKey != "" {
		s.OpenAIAPIKey = ptr(auth.OpenAIAPIKey)
	}
	if auth.LastRefresh != "" {
		s.LastRefresh = ptr(auth.LastRefresh)
	}

	if auth.Tokens == nil {
		return s
	}
	tokens := auth.Tokens

	s.IDTokenClaims = DecodeClaims(tokens.IDToken)
	s.AccessTokenClaims = DecodeClaims(tokens.AccessToken)

	if email, ok := claimString(s.IDTokenClaims, "email"); ok {
		s.Email = ptr(email)
	}
	if plan, ok := nestedClaimString(s.IDTokenClaims, authClaimNamespace, "chatgpt_plan_type"); ok {
		s.PlanType = ptr(plan)
	}
	if exp, ok := claimNumber(s.IDTokenClaims, "exp"); ok {
		s.ExpiresAt = ptr(time.Unix(int64(exp), 0).UTC().Format(time.RFC3339))
	}
	if len(tokens.AccessToken) >= 4 {
		s.AccessTokenLast4 = ptr(tokens.AccessToken[len(tokens.AccessToken)-4:])
	}

	if tokens.AccountID != "" {
		s.AccountID = ptr(tokens.AccountID)
	} else if accountID, ok := nestedClaimString(s.IDTokenClaims, authClaimNamespace, "chatgpt_account_id"); ok {
		s.AccountID = ptr(accountID)
	}

	if sub, ok := claimString(s.IDTokenClaims, "sub"); ok {
		s.OpenAIUserSub = ptr(sub)
		if idx := strings.Index(sub, "|"); idx >= 0 {
			s.OpenAIUserType = ptr(sub[:idx])
		}
	}

	return s
}

func claimString(claims map[string]any, key string) (string, bool) {
	if claims == nil {
		return "", false
	}
	v, ok := claims[key].(string)
	return v, ok
}

func claimNumber(claims map[string]any, key string) (float64, bool) {
	if claims == nil {
		return 0, false
	}
	v, ok := claims[key].(float64)
	return v, ok
}

func nestedClaimString(claims map[string]any, namespace, key string) (string, bool) {
	if claims == nil {
		return "", false
	}
	nested, ok := claims[namespace].(map[string]any)
	if !ok {
		return "", false
	}
	v, ok := nested[key].(string)
	return v, ok
}

func ptr[T any](v T) *T { return &v }
