package transfer

type LinkedinUserInfo struct {
	Sub     string `json:"sub"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture"`
}

type LinkedinRegisterUploadRequest struct {
	RegisterUploadRequest LinkedinUploadSpec `json:"registerUploadRequest"`
}

type LinkedinUploadSpec struct {
	Recipes              []string                      `json:"recipes"`
	Owner                string                        `json:"owner"`
	ServiceRelationships []LinkedinServiceRelationship `json:"serviceRelationships"`
}

type LinkedinServiceRelationship struct {
	RelationshipType string `json:"relationshipType"`
	Identifier       string `json:"identifier"`
}

type LinkedinRegisterUploadResponse struct {
	Value struct {
		Asset           string `json:"asset"`
		UploadMechanism map[string]struct {
			UploadURL string            `json:"uploadUrl"`
			Headers   map[string]string `json:"headers"`
		} `json:"uploadMechanism"`
	} `json:"value"`
}

type LinkedinShareRequest struct {
	Author          string                   `json:"author"`
	LifecycleState  string                   `json:"lifecycleState"`
	SpecificContent map[string]LinkedinShare `json:"specificContent"`
	Visibility      map[string]string        `json:"visibility"`
}

type LinkedinShare struct {
	ShareCommentary    LinkedinText    `json:"shareCommentary"`
	ShareMediaCategory string          `json:"shareMediaCategory"`
	Media              []LinkedinMedia `json:"media,omitempty"`
}

type LinkedinText struct {
	Text string `json:"text"`
}

type LinkedinMedia struct {
	Status string `json:"status"`
	Media  string `json:"media"`
}

type LinkedinShareResponse struct {
	ID string `json:"id"`
}
