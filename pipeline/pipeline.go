// Package pipeline orchestrates a repost end to end: reference validation,
// login, resolution, download, caption assembly and publish. It owns the
// mapping from internal failures to the human-readable outcome shown to the
// requesting user; raw API payloads never leave this package.
package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mojtba-allam/my-insta-bot/auth"
	"github.com/mojtba-allam/my-insta-bot/db"
	"github.com/mojtba-allam/my-insta-bot/gramapi"
	"github.com/mojtba-allam/my-insta-bot/media"
	"github.com/mojtba-allam/my-insta-bot/publish"
	"github.com/mojtba-allam/my-insta-bot/resolve"
	"github.com/mojtba-allam/my-insta-bot/telemetry"
)

// ResultClass identifies the outcome of a repost request.
type ResultClass string

const (
	ClassPublished            ResultClass = "published"
	ClassPublishedUnconfirmed ResultClass = "published_unconfirmed"
	ClassInvalidReference     ResultClass = "invalid_reference"
	ClassAuthRequired         ResultClass = "auth_required"
	ClassChallengeRequired    ResultClass = "challenge_required"
	ClassBadPassword          ResultClass = "bad_password"
	ClassInvalidUser          ResultClass = "invalid_user"
	ClassNetworkError         ResultClass = "network_error"
	ClassRateLimited          ResultClass = "rate_limited"
	ClassPostNotFound         ResultClass = "post_not_found"
	ClassNoMediaFound         ResultClass = "no_media_found"
	ClassResolutionFailed     ResultClass = "resolution_failed"
	ClassPublishFailed        ResultClass = "publish_failed"
	ClassCanceled             ResultClass = "canceled"
	ClassUnknown              ResultClass = "error"
)

// Request is one repost order.
type Request struct {
	AccountID string
	URL       string
}

// Outcome is what the front end reports back to the user.
type Outcome struct {
	Class   ResultClass
	Message string
	MediaID string
}

// Interaction is how the pipeline talks back to the requesting user mid-flight.
type Interaction interface {
	// Credentials asks the user for a username and password.
	Credentials(ctx context.Context) (username, secret string, err error)
	// Caption asks what caption to publish with; original is the source
	// caption for reference.
	Caption(ctx context.Context, original string) (string, error)
	// Notify sends a progress line to the user.
	Notify(ctx context.Context, message string)
}

// captionKeepOriginal is the reply that keeps the source caption.
const captionKeepOriginal = "original"

// Service wires the repost stages together.
type Service struct {
	DB           *sql.DB
	Auth         *auth.Manager
	Materializer *media.Materializer
	Publisher    *publish.Publisher

	// NewResolver builds the per-request resolver; swapped in tests.
	NewResolver func(resolve.Client) *resolve.Resolver
}

// New builds a Service with the standard resolver strategy order.
func New(dbx *sql.DB, am *auth.Manager, mat *media.Materializer, pub *publish.Publisher) *Service {
	return &Service{
		DB:           dbx,
		Auth:         am,
		Materializer: mat,
		Publisher:    pub,
		NewResolver: func(c resolve.Client) *resolve.Resolver {
			return resolve.New(c, resolve.NewScraper())
		},
	}
}

// Run executes one repost request and returns the user-facing outcome. It
// never returns an error; every failure is folded into the Outcome.
func (s *Service) Run(ctx context.Context, req Request, ia Interaction) Outcome {
	corr := uuid.NewString()[:8]
	ctx = telemetry.WithCorrelation(ctx, corr)
	logger := telemetry.LoggerWithCorr(ctx).With(
		slog.String("account", req.AccountID), slog.String("url", req.URL))
	done := telemetry.TrackActive()
	defer done()

	var out Outcome
	telemetry.TimeFunc(telemetry.RepostDuration, func() {
		out = s.run(ctx, req, ia, logger)
	})
	logger.Info("repost finished", slog.String("class", string(out.Class)))
	return out
}

func (s *Service) run(ctx context.Context, req Request, ia Interaction, logger *slog.Logger) Outcome {
	shortcode, err := resolve.ExtractShortcode(req.URL)
	if err != nil {
		return Outcome{Class: ClassInvalidReference,
			Message: "That doesn't look like a post link. Send a link containing /p/, /reel/ or /tv/."}
	}

	cred, err := s.credentials(ctx, req.AccountID, ia, false)
	if err != nil {
		return s.failure(err, shortcode)
	}

	client, err := s.Auth.Login(ctx, req.AccountID, cred.Username, cred.Secret, false)
	if err != nil {
		return s.failure(err, shortcode)
	}

	ia.Notify(ctx, "Logged in as "+cred.Username+", fetching the post...")

	rctx, span := telemetry.StartSpan(ctx, "pipeline", "resolve", attribute.String("shortcode", shortcode))
	rm, err := s.NewResolver(client).Resolve(rctx, req.URL)
	telemetry.EndSpan(span, err)
	if err != nil && gramapi.Classify(err) == gramapi.KindAuthRequired {
		// The post needs an authenticated view this session doesn't have.
		// Ask for credentials once and retry with a forced fresh login.
		logger.Warn("resolution requires authentication, re-prompting for credentials")
		ia.Notify(ctx, "This post needs a logged-in account. Please provide credentials.")
		cred, err = s.credentials(ctx, req.AccountID, ia, true)
		if err != nil {
			return s.failure(err, shortcode)
		}
		client, err = s.Auth.Login(ctx, req.AccountID, cred.Username, cred.Secret, true)
		if err != nil {
			return s.failure(err, shortcode)
		}
		rm, err = s.NewResolver(client).Resolve(ctx, req.URL)
	}
	if err != nil {
		return s.failure(err, shortcode)
	}

	ia.Notify(ctx, fmt.Sprintf("Found %d media item(s), downloading...", len(rm.Items)))

	dctx, span := telemetry.StartSpan(ctx, "pipeline", "download", attribute.String("shortcode", shortcode))
	set, err := s.Materializer.Fetch(dctx, rm, req.URL)
	telemetry.EndSpan(span, err)
	if err != nil {
		return s.failure(err, shortcode)
	}
	defer set.Cleanup()

	caption, err := ia.Caption(ctx, set.Caption)
	if err != nil {
		return s.failure(err, shortcode)
	}
	caption = assembleCaption(caption, set.Caption, req.URL)

	ia.Notify(ctx, "Publishing...")

	pctx, span := telemetry.StartSpan(ctx, "pipeline", "publish", attribute.String("shortcode", shortcode))
	res, err := s.Publisher.Publish(pctx, client, set, caption)
	telemetry.EndSpan(span, err)
	s.record(ctx, req, set, res, err, logger)
	if err != nil {
		return s.publishFailure(err, shortcode)
	}
	switch res.Status {
	case publish.StatusConfirmed:
		return Outcome{Class: ClassPublished, MediaID: res.MediaID,
			Message: "Reposted! New post id: " + res.MediaID}
	case publish.StatusUnconfirmed:
		return Outcome{Class: ClassPublishedUnconfirmed,
			Message: "Upload was accepted but the service did not confirm the new post. Check the account before retrying."}
	default:
		return Outcome{Class: ClassPublishFailed, Message: "Publishing failed."}
	}
}

// credentials loads the stored login for the account, prompting the user and
// persisting the answer when none is stored or a fresh one is forced.
func (s *Service) credentials(ctx context.Context, accountID string, ia Interaction, force bool) (db.Credential, error) {
	if !force {
		cred, ok, err := db.GetCredential(ctx, s.DB, accountID)
		if err != nil {
			return db.Credential{}, fmt.Errorf("load credentials: %w", err)
		}
		if ok {
			return cred, nil
		}
	}
	username, secret, err := ia.Credentials(ctx)
	if err != nil {
		return db.Credential{}, err
	}
	if err := db.UpsertCredential(ctx, s.DB, accountID, username, secret); err != nil {
		slog.Warn("credential persist failed", slog.String("account", accountID), slog.Any("err", err))
	}
	return db.Credential{AccountID: accountID, Username: username, Secret: secret}, nil
}

// assembleCaption applies the caption rules: empty or the keep-original
// keyword reuses the source caption, and the attribution line is always
// appended.
func assembleCaption(reply, original, sourceURL string) string {
	caption := strings.TrimSpace(reply)
	if caption == "" || strings.EqualFold(caption, captionKeepOriginal) {
		caption = original
	}
	return caption + "\n\nOriginal: " + sourceURL
}

// record appends the history row; failures only log.
func (s *Service) record(ctx context.Context, req Request, set *media.LocalSet, res *publish.Result, pubErr error, logger *slog.Logger) {
	row := db.Repost{
		AccountID:     req.AccountID,
		Shortcode:     set.Shortcode,
		SourceURL:     req.URL,
		OwnerUsername: set.Owner,
		MediaKind:     kindLabel(set.Kind),
		ItemCount:     len(set.Files),
	}
	if res != nil {
		row.Status = res.Status.String()
		row.PublishedMediaID = res.MediaID
	}
	if pubErr != nil {
		row.Status = publish.StatusFailed.String()
		row.Error = pubErr.Error()
	}
	if err := db.RecordRepost(ctx, s.DB, row); err != nil {
		logger.Warn("repost history write failed", slog.Any("err", err))
	}
}

func kindLabel(k resolve.MediaKind) string {
	switch k {
	case resolve.KindVideo:
		return "video"
	case resolve.KindCarousel:
		return "carousel"
	default:
		return "photo"
	}
}

// failure maps an internal error to the user-facing outcome. Messages are
// written for the requesting user; the raw error stays in the logs.
func (s *Service) failure(err error, shortcode string) Outcome {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Outcome{Class: ClassCanceled, Message: "Request canceled."}
	}
	if errors.Is(err, resolve.ErrInvalidReference) {
		return Outcome{Class: ClassInvalidReference,
			Message: "That doesn't look like a post link. Send a link containing /p/, /reel/ or /tv/."}
	}
	if errors.Is(err, media.ErrNoMediaFound) {
		return Outcome{Class: ClassNoMediaFound, Message: "The post has no downloadable media."}
	}
	switch gramapi.Classify(err) {
	case gramapi.KindChallengeRequired:
		return Outcome{Class: ClassChallengeRequired,
			Message: "The service requires extra verification for this account. Complete the challenge in the app, then try again."}
	case gramapi.KindBadPassword:
		return Outcome{Class: ClassBadPassword, Message: "The password is wrong. Use !logout and start over with the right one."}
	case gramapi.KindInvalidUser:
		return Outcome{Class: ClassInvalidUser, Message: "That username doesn't exist."}
	case gramapi.KindRateLimited:
		return Outcome{Class: ClassRateLimited,
			Message: "The service is rate limiting this account. Wait a while before trying again; retrying now makes it worse."}
	case gramapi.KindNetwork:
		return Outcome{Class: ClassNetworkError,
			Message: "Can't reach the service right now. Check connectivity and try again."}
	case gramapi.KindAuthRequired:
		return Outcome{Class: ClassAuthRequired, Message: "Viewing this post requires a logged-in account."}
	case gramapi.KindNotFound:
		return Outcome{Class: ClassPostNotFound,
			Message: "Post " + shortcode + " was not found. It may be deleted or private."}
	default:
		if strings.Contains(err.Error(), "could not resolve post") {
			return Outcome{Class: ClassResolutionFailed,
				Message: "Couldn't fetch the post media with any method. Try again later."}
		}
		return Outcome{Class: ClassUnknown, Message: "Something went wrong. Try again later."}
	}
}

// publishFailure is failure with a publish-specific default.
func (s *Service) publishFailure(err error, shortcode string) Outcome {
	out := s.failure(err, shortcode)
	if out.Class == ClassUnknown {
		out = Outcome{Class: ClassPublishFailed, Message: "Publishing failed. Try again later."}
	}
	return out
}
