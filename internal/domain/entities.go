package domain

import (
	"encoding/json"
	"maps"
	"slices"
	"strings"
	"time"
)

// Stage codes stored in AuctionDocument.CurrentStage. Non-negative values are
// indexes into AuctionDocument.Stages.
const (
	StageNew         = -1
	StageCanceled    = -100
	StageRescheduled = -101
	StageEnded       = -102
)

const (
	ModeTest = "test"

	BidStatusActive = "active"
)

// Multilingual tender fields copied into the document.
var (
	MultilingualFields  = []string{"title", "description"}
	AdditionalLanguages = []string{"ru", "en"}
)

type StageType string

const (
	StagePause        StageType = "pause"
	StageBids         StageType = "bids"
	StageAnnouncement StageType = "announcement"
)

type Stage struct {
	Start time.Time `json:"start"`
	Type  StageType `json:"type"`
	Round int       `json:"round,omitempty"`
}

type Result struct {
	BidderID      string    `json:"bidder_id"`
	BidderOrdinal int       `json:"bidder_ordinal"`
	Amount        float64   `json:"amount"`
	Time          time.Time `json:"time"`
}

type BidInformation struct {
	BidderID      string          `json:"bidder_id"`
	BidderOrdinal int             `json:"bidder_ordinal"`
	Date          string          `json:"date"`
	Owner         string          `json:"owner,omitempty"`
	Value         json.RawMessage `json:"value,omitempty"`
	Tenderers     json.RawMessage `json:"tenderers,omitempty"`
}

// AuctionDocument is the durable record of one auction's progress.
type AuctionDocument struct {
	ID                    string            `json:"_id"`
	Revision              string            `json:"_rev,omitempty"`
	AuctionID             string            `json:"auctionID"`
	ProcurementMethodType string            `json:"procurementMethodType"`
	TendersAPIVersion     string            `json:"TENDERS_API_VERSION"`
	AuctionType           string            `json:"auction_type"`
	Mode                  string            `json:"mode,omitempty"`
	TestAuctionData       json.RawMessage   `json:"test_auction_data,omitempty"`
	CurrentStage          int               `json:"current_stage"`
	CurrentPhase          string            `json:"current_phase"`
	Stages                []Stage           `json:"stages"`
	Results               []Result          `json:"results"`
	BidderMapping         map[string]int    `json:"bidder_mapping"`
	BidsInformation       []BidInformation  `json:"bids_information,omitempty"`
	ProcuringEntity       json.RawMessage   `json:"procuringEntity,omitempty"`
	Items                 json.RawMessage   `json:"items,omitempty"`
	Value                 json.RawMessage   `json:"value,omitempty"`
	InitialValue          *float64          `json:"initial_value,omitempty"`
	Localized             map[string]string `json:"localized,omitempty"`
	StartDate             *time.Time        `json:"startDate,omitempty"`
	EndDate               *time.Time        `json:"endDate,omitempty"`
}

func IsTerminalStage(stage int) bool {
	return stage == StageCanceled || stage == StageRescheduled || stage == StageEnded
}

func (d *AuctionDocument) IsTerminal() bool {
	return IsTerminalStage(d.CurrentStage)
}

func (d *AuctionDocument) IsTest() bool {
	return d.Mode == ModeTest
}

// Clone returns a deep copy so a failed write never leaks into the caller's copy.
func (d *AuctionDocument) Clone() *AuctionDocument {
	if d == nil {
		return nil
	}
	data, err := json.Marshal(d)
	if err != nil {
		panic(err)
	}
	var clone AuctionDocument
	if err := json.Unmarshal(data, &clone); err != nil {
		panic(err)
	}
	return &clone
}

// StageName renders a stage code for logs and events.
func StageName(stage int) string {
	switch {
	case stage == StageNew:
		return "new"
	case stage == StageCanceled:
		return "canceled"
	case stage == StageRescheduled:
		return "rescheduled"
	case stage == StageEnded:
		return "ended"
	case stage >= 0:
		return "scheduled"
	default:
		return "unknown"
	}
}

type Period struct {
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
}

type Bid struct {
	ID        string          `json:"id"`
	Date      string          `json:"date"`
	Owner     string          `json:"owner,omitempty"`
	Status    string          `json:"status,omitempty"`
	Value     json.RawMessage `json:"value,omitempty"`
	Tenderers json.RawMessage `json:"tenderers,omitempty"`
}

// IsActive treats a bid without status as active.
func (b Bid) IsActive() bool {
	return b.Status == "" || b.Status == BidStatusActive
}

// TenderData is the "data" member of a tender or auction resource.
type TenderData struct {
	ID                    string          `json:"id,omitempty"`
	AuctionID             string          `json:"auctionID,omitempty"`
	ProcurementMethodType string          `json:"procurementMethodType,omitempty"`
	ProcuringEntity       json.RawMessage `json:"procuringEntity,omitempty"`
	Items                 json.RawMessage `json:"items,omitempty"`
	Value                 json.RawMessage `json:"value,omitempty"`
	AuctionPeriod         *Period         `json:"auctionPeriod,omitempty"`
	Bids                  []Bid           `json:"bids,omitempty"`

	// Localized holds title/description and their language variants.
	Localized map[string]string `json:"-"`
}

type tenderDataAlias TenderData

func (t *TenderData) UnmarshalJSON(data []byte) error {
	var alias tenderDataAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*t = TenderData(alias)
	for key, value := range raw {
		if !isLocalizedKey(key) {
			continue
		}
		var text string
		if err := json.Unmarshal(value, &text); err != nil {
			continue
		}
		if t.Localized == nil {
			t.Localized = make(map[string]string)
		}
		t.Localized[key] = text
	}
	return nil
}

func (t TenderData) MarshalJSON() ([]byte, error) {
	body, err := json.Marshal(tenderDataAlias(t))
	if err != nil {
		return nil, err
	}
	if len(t.Localized) == 0 {
		return body, nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	for key, text := range t.Localized {
		encoded, err := json.Marshal(text)
		if err != nil {
			return nil, err
		}
		raw[key] = encoded
	}
	return json.Marshal(raw)
}

func isLocalizedKey(key string) bool {
	for _, field := range MultilingualFields {
		if key == field {
			return true
		}
		for _, lang := range AdditionalLanguages {
			if key == field+"_"+lang {
				return true
			}
		}
	}
	return false
}

// Clone returns a copy that Merge can change without touching t.
func (t *TenderData) Clone() *TenderData {
	if t == nil {
		return nil
	}
	clone := *t
	clone.Bids = slices.Clone(t.Bids)
	clone.Localized = maps.Clone(t.Localized)
	return &clone
}

// Merge overlays the non-empty members of other, the way the auction
// sub-resource refines the tender resource.
func (t *TenderData) Merge(other *TenderData) {
	if other == nil {
		return
	}
	if other.ID != "" {
		t.ID = other.ID
	}
	if other.AuctionID != "" {
		t.AuctionID = other.AuctionID
	}
	if other.ProcurementMethodType != "" {
		t.ProcurementMethodType = other.ProcurementMethodType
	}
	if len(other.ProcuringEntity) > 0 {
		t.ProcuringEntity = other.ProcuringEntity
	}
	if len(other.Items) > 0 {
		t.Items = other.Items
	}
	if len(other.Value) > 0 {
		t.Value = other.Value
	}
	if other.AuctionPeriod != nil {
		t.AuctionPeriod = other.AuctionPeriod
	}
	if other.Bids != nil {
		t.Bids = other.Bids
	}
	for key, text := range other.Localized {
		if t.Localized == nil {
			t.Localized = make(map[string]string)
		}
		t.Localized[key] = text
	}
}

// ValueAmount extracts value.amount, if present.
func (t *TenderData) ValueAmount() *float64 {
	if len(t.Value) == 0 {
		return nil
	}
	var value struct {
		Amount *float64 `json:"amount"`
	}
	if err := json.Unmarshal(t.Value, &value); err != nil {
		return nil
	}
	return value.Amount
}

// StartDate parses auctionPeriod.startDate. A missing date yields the zero time.
func (t *TenderData) StartDate() (time.Time, error) {
	if t.AuctionPeriod == nil || strings.TrimSpace(t.AuctionPeriod.StartDate) == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, t.AuctionPeriod.StartDate)
}

// TenderEnvelope wraps resource API responses.
type TenderEnvelope struct {
	Data TenderData `json:"data"`
}

type BidSnapshot struct {
	BidderID            string
	SubmissionTimestamp string
	OwnerReference      string
}

// DocumentEvent is published after every successful document write.
type DocumentEvent struct {
	Type         DocumentEventType `json:"type"`
	AuctionID    string            `json:"auction_id"`
	Revision     string            `json:"revision"`
	CurrentStage int               `json:"current_stage"`
	CurrentPhase string            `json:"current_phase"`
	RequestID    string            `json:"request_id"`
	Timestamp    time.Time         `json:"timestamp"`
}

type DocumentEventType string

const (
	EventPrepared    DocumentEventType = "auction_prepared"
	EventStarted     DocumentEventType = "auction_started"
	EventStageSwitch DocumentEventType = "stage_switched"
	EventEnded       DocumentEventType = "auction_ended"
	EventCanceled    DocumentEventType = "auction_canceled"
	EventRescheduled DocumentEventType = "auction_rescheduled"
	EventAnnounced   DocumentEventType = "auction_announced"
)

type ScheduledJob struct {
	ID        string
	AuctionID string
	JobType   JobType
	RunAt     time.Time
	Status    JobStatus
	CreatedAt time.Time
}

type JobType string

const (
	JobStartAuction JobType = "start_auction"
	JobSwitchStage  JobType = "switch_stage"
	JobEndAuction   JobType = "end_auction"
)

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobExecuted  JobStatus = "executed"
	JobCancelled JobStatus = "cancelled"
	JobMisfired  JobStatus = "misfired"
	JobFailed    JobStatus = "failed"
)
