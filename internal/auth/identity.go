package auth

// Identity OAuth 제공자가 확인해 준 사용자 정보
type Identity struct {
	Provider   string
	ProviderID string
	Email      string
	Name       string
	Picture    string
}
