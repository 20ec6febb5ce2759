package dto

type StorageTokenRequest struct {
	AccessGroupID   string  `json:"accessGroupId"`
	UserID          *string `json:"userId,omitempty"`
	CanUploadFiles  bool    `json:"canUploadFiles"`
	CanReadFiles    bool    `json:"canReadFiles"`
	YdocAccessLevel int     `json:"ydocAccessLevel"`
}

type StorageTokenResponse struct {
	Token string `json:"token"`
}
