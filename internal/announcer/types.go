package announcer

import (
	"context"

	"announcerd/internal/gateway"
	"announcerd/internal/mailer"
)

// Config controls the reconciliation loop.
type Config struct {
	// Schedule is either a Go duration ("5s", "2m") or a cron expression
	// ("*/5 * * * *", "@hourly"). Empty means the default interval.
	Schedule string

	// LinkBaseURL is prepended to a post id to build the review link.
	LinkBaseURL string
}

// PostsGateway is the slice of the content gateway the cycle consumes.
type PostsGateway interface {
	ListPending(ctx context.Context) ([]gateway.Post, error)
	RequestAnnouncement(ctx context.Context, id string) (bool, error)
}

// AccountsGateway is the slice of the identity gateway the cycle consumes.
type AccountsGateway interface {
	ListAdmins(ctx context.Context) ([]gateway.Account, error)
}

// Broadcaster delivers composed messages over one mail session per call.
type Broadcaster interface {
	Send(ctx context.Context, msgs []mailer.Message) error
}
