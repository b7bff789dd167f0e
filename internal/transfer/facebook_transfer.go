package transfer

type FacebookTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type FacebookUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type FacebookPage struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AccessToken string `json:"access_token"`
	Category    string `json:"category"`
}

type FacebookPagesResponse struct {
	Data []FacebookPage `json:"data"`
}

type FacebookIDResponse struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
}
