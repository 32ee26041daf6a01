package pairing

// Wire payloads for the coordinator's outbound events.

type PlatformChange struct {
	Platform int64 `json:"platform"`
}

type ProductRef struct {
	ID int64 `json:"id"`
}

type NewPairing struct {
	Platform  int64      `json:"platform"`
	Product   ProductRef `json:"product"`
	RecordID  int64      `json:"recordId"`
	Overwrite bool       `json:"overwrite"`
}

type ProductMoved struct {
	Product int64 `json:"product"`
	From    int64 `json:"from"`
	To      int64 `json:"to"`
}
