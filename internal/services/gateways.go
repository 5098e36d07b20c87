package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/saeid-a/GroupCoachBack/internal/models"
)

// PaymentGateway captures charges and issues refunds. Charge failures during
// registration abort the admission; refund failures are logged and never roll
// back the state transition that triggered them.
type PaymentGateway interface {
	Charge(ctx context.Context, userID int64, amount decimal.Decimal, currency string) (string, error)
	Refund(ctx context.Context, paymentRef string) error
}

// MeetingProvider provisions the video room when a session goes live.
type MeetingProvider interface {
	ProvisionRoom(ctx context.Context, sessionID int64) (*models.MeetingRoom, error)
}

// NotificationGateway delivers best-effort notifications. Calls are made off
// the critical path; failures must not surface as operation errors.
type NotificationGateway interface {
	Notify(ctx context.Context, userID int64, eventType string, payload map[string]any) error
}

// Notification event types emitted by the session and participant services.
const (
	NotifySessionStarted    = "session_started"
	NotifySessionEnded      = "session_ended"
	NotifySessionCancelled  = "session_cancelled"
	NotifyWaitlistPromoted  = "waitlist_promoted"
	NotifyRegistrationReady = "registration_confirmed"
)

// PlaceholderPaymentGateway records charge intents without talking to a real
// provider. The capture itself is confirmed later through the payment
// callback, mirroring the placeholder payment rows the booking flow used
// before a provider was wired in.
type PlaceholderPaymentGateway struct{}

func NewPlaceholderPaymentGateway() *PlaceholderPaymentGateway {
	return &PlaceholderPaymentGateway{}
}

func (g *PlaceholderPaymentGateway) Charge(
	_ context.Context,
	userID int64,
	amount decimal.Decimal,
	currency string,
) (string, error) {
	ref := fmt.Sprintf("pay_%s", strings.ReplaceAll(uuid.NewString(), "-", ""))
	log.Printf("payment gateway: charge intent %s user=%d amount=%s %s", ref, userID, amount.String(), currency)
	return ref, nil
}

func (g *PlaceholderPaymentGateway) Refund(_ context.Context, paymentRef string) error {
	log.Printf("payment gateway: refund %s", paymentRef)
	return nil
}

// UUIDMeetingProvider generates room credentials locally. A real deployment
// would call the video vendor's API here.
type UUIDMeetingProvider struct {
	BaseURL string
}

func NewUUIDMeetingProvider(baseURL string) *UUIDMeetingProvider {
	if baseURL == "" {
		baseURL = "https://meet.groupcoach.app"
	}
	return &UUIDMeetingProvider{BaseURL: strings.TrimRight(baseURL, "/")}
}

func (p *UUIDMeetingProvider) ProvisionRoom(
	_ context.Context,
	sessionID int64,
) (*models.MeetingRoom, error) {
	meetingID := uuid.NewString()
	return &models.MeetingRoom{
		MeetingID: meetingID,
		URL:       fmt.Sprintf("%s/%d/%s", p.BaseURL, sessionID, meetingID),
		Password:  uuid.NewString()[:8],
	}, nil
}

// LogNotificationGateway writes notifications to the process log. It stands
// in for the push/email pipeline, which lives outside this service.
type LogNotificationGateway struct{}

func NewLogNotificationGateway() *LogNotificationGateway {
	return &LogNotificationGateway{}
}

func (g *LogNotificationGateway) Notify(
	_ context.Context,
	userID int64,
	eventType string,
	payload map[string]any,
) error {
	log.Printf("notify user=%d event=%s payload=%v", userID, eventType, payload)
	return nil
}

// notifyAsync dispatches a notification without blocking the caller's
// critical section. Failures are logged, never propagated.
func notifyAsync(gateway NotificationGateway, userID int64, eventType string, payload map[string]any) {
	if gateway == nil {
		return
	}
	go func() {
		if err := gateway.Notify(context.Background(), userID, eventType, payload); err != nil {
			log.Printf("notification %s to user %d failed: %v", eventType, userID, err)
		}
	}()
}
