package store

// FunnelStage is the marketing funnel position of a lead.
// Values are persisted lowercase; the enum is the only place the string
// encoding lives.
type FunnelStage string

const (
	StageUnknown      FunnelStage = "unknown"
	StageAttraction   FunnelStage = "attraction"
	StageRelationship FunnelStage = "relationship"
	StageConversion   FunnelStage = "conversion"
	StageCustomer     FunnelStage = "customer"
)

func (s FunnelStage) String() string {
	return string(s)
}

// IsValid reports whether s is one of the closed set of stages.
func (s FunnelStage) IsValid() bool {
	switch s {
	case StageUnknown, StageAttraction, StageRelationship, StageConversion, StageCustomer:
		return true
	}
	return false
}

// ParseFunnelStage converts a persisted stage string back to the enum.
// Unrecognized values map to StageUnknown.
func ParseFunnelStage(s string) FunnelStage {
	stage := FunnelStage(s)
	if !stage.IsValid() {
		return StageUnknown
	}
	return stage
}

// InteractionType classifies a single interaction record.
type InteractionType string

const (
	InteractionMessage InteractionType = "message"
	InteractionRespond InteractionType = "response"
	InteractionMeeting InteractionType = "meeting"
)

// Direction marks which side initiated an interaction.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// MessageStatus is the lifecycle status of a scheduled message.
// The only legal mutation is pending -> sent|failed|cancelled.
type MessageStatus string

const (
	MessagePending   MessageStatus = "pending"
	MessageSent      MessageStatus = "sent"
	MessageFailed    MessageStatus = "failed"
	MessageCancelled MessageStatus = "cancelled"
)

// ChannelWhatsApp is the only delivery channel currently wired to a gateway.
const ChannelWhatsApp = "whatsapp"
