package transfer

type InstagramShortLivedToken struct {
	AccessToken string `json:"access_token"`
	UserID      int64  `json:"user_id"`
}

type InstagramLongLivedToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type InstagramUserInfo struct {
	ID             string `json:"id"`
	UserID         string `json:"user_id"`
	Username       string `json:"username"`
	Name           string `json:"name"`
	AccountType    string `json:"account_type"`
	ProfilePicture string `json:"profile_picture_url"`
}

type InstagramContainerRequest struct {
	ImageURL       string `json:"image_url,omitempty"`
	VideoURL       string `json:"video_url,omitempty"`
	MediaType      string `json:"media_type,omitempty"`
	Caption        string `json:"caption,omitempty"`
	IsCarouselItem bool   `json:"is_carousel_item,omitempty"`
	Children       string `json:"children,omitempty"`
	AccessToken    string `json:"access_token"`
}

type InstagramIDResponse struct {
	ID string `json:"id"`
}

type InstagramContainerStatus struct {
	ID         string `json:"id"`
	StatusCode string `json:"status_code"`
	Status     string `json:"status"`
}
