package transfer

type TwitterUserResponse struct {
	Data struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Username string `json:"username"`
	} `json:"data"`
}

type TwitterMediaResponse struct {
	MediaID        int64                  `json:"media_id"`
	MediaIDString  string                 `json:"media_id_string"`
	ProcessingInfo *TwitterProcessingInfo `json:"processing_info"`
}

type TwitterProcessingInfo struct {
	State           string `json:"state"`
	CheckAfterSecs  int    `json:"check_after_secs"`
	ProgressPercent int    `json:"progress_percent"`
	Error           *struct {
		Code    int    `json:"code"`
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"error"`
}

type TwitterTweetRequest struct {
	Text  string             `json:"text,omitempty"`
	Media *TwitterTweetMedia `json:"media,omitempty"`
}

type TwitterTweetMedia struct {
	MediaIDs []string `json:"media_ids"`
}

type TwitterTweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}
