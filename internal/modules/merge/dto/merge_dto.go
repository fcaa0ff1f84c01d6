package dto

type MergeUsersRequest struct {
	PrimaryID   string `json:"primary_id" binding:"required,uuid"`
	SecondaryID string `json:"secondary_id" binding:"required,uuid"`
}

type CleanupRequest struct {
	IgnoreIDs []string `json:"ignore_ids" binding:"omitempty,dive,uuid"`
	DryRun    bool     `json:"dry_run"`
}

type CleanupResponse struct {
	Messages []string `json:"messages"`
	DryRun   bool     `json:"dry_run"`
}
