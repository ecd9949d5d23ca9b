package handlers

type SyncNowResponse struct {
	Code   string `json:"code"`
	Status string `json:"status"`
}

type ItemsResponse struct {
	Items any `json:"items"`
	Count int `json:"count"`
}
