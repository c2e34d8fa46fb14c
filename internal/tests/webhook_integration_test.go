package tests

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daybook/server/internal/attachments"
	"github.com/daybook/server/internal/billing"
	"github.com/daybook/server/internal/crypto"
	"github.com/daybook/server/internal/db"
	httphandler "github.com/daybook/server/internal/http"
	"github.com/daybook/server/internal/http/handlers"
	"github.com/daybook/server/internal/journal"
	"github.com/daybook/server/internal/model"
	"github.com/daybook/server/internal/repo"
	"github.com/daybook/server/internal/storage"
	"github.com/daybook/server/internal/webhook"
	_ "github.com/lib/pq"
)

const testSigningSecret = "whsec_integration_test"

// recordingSender collects outbound sends instead of hitting the provider.
type recordingSender struct {
	mu    sync.Mutex
	sends []string
}

func (r *recordingSender) Send(ctx context.Context, toPhone, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sends = append(r.sends, body)
	return nil
}

type testStack struct {
	Server   *httptest.Server
	DB       *sql.DB
	Sender   *recordingSender
	Users    repo.UserRepo
	Entries  repo.EntryRepo
	Messages repo.MessageRepo
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping integration test")
	}

	ctx := context.Background()
	database, err := db.Open(ctx, dsn)
	require.NoError(t, err, "database open must succeed; check TEST_DATABASE_URL")
	t.Cleanup(func() { database.Close() })

	require.NoError(t, RunMigrations(database))
	require.NoError(t, TruncateAll(ctx, database))

	messageRepo := repo.NewMessageRepo(database)
	userRepo := repo.NewUserRepo(database)
	subscriptionRepo := repo.NewSubscriptionRepo(database)
	rateLimitRepo := repo.NewRateLimitRepo(database)
	entryRepo := repo.NewEntryRepo(database)
	attachmentRepo := repo.NewAttachmentRepo(database)

	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	logger := slog.Default()
	codec := crypto.NewCodec()
	aggregator := journal.NewAggregator(entryRepo, codec, logger)
	ingestor := attachments.NewIngestor(store, attachmentRepo, logger)
	sender := &recordingSender{}
	checkout := billing.NewCheckoutService("test-checkout-secret", "https://billing.example/checkout")

	service := webhook.NewService(
		messageRepo, userRepo, subscriptionRepo, rateLimitRepo,
		aggregator, ingestor, sender, checkout,
		webhook.Templates{
			Instruction:     func() string { return "instruction" },
			Confirmation:    func() string { return "confirmation" },
			BillingReminder: func(url string) string { return "billing " + url },
		},
		logger,
	)

	validator := webhook.NewSignatureValidator(testSigningSecret)
	handler := handlers.NewWebhookHandler(validator, service, false, logger)
	srv := httptest.NewServer(httphandler.NewRouter(handler))
	t.Cleanup(srv.Close)

	return &testStack{
		Server:   srv,
		DB:       database,
		Sender:   sender,
		Users:    userRepo,
		Entries:  entryRepo,
		Messages: messageRepo,
	}
}

func (s *testStack) createUser(t *testing.T, phone string, verified, subscribed bool) uuid.UUID {
	t.Helper()
	var idStr string
	err := s.DB.QueryRow(`
		INSERT INTO users (phone_number, email, phone_verified, timezone)
		VALUES ($1, $2, $3, 'UTC')
		RETURNING id
	`, phone, "test@example.com", verified).Scan(&idStr)
	require.NoError(t, err)
	id, err := uuid.Parse(idStr)
	require.NoError(t, err)

	_, err = s.DB.Exec(`
		INSERT INTO subscriptions (user_id, subscribed) VALUES ($1, $2)
	`, idStr, subscribed)
	require.NoError(t, err)
	return id
}

func signedRequest(t *testing.T, url string, body []byte) *http.Request {
	t.Helper()
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(testSigningSecret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(body)

	req, err := http.NewRequest(http.MethodPost, url+"/webhook", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Surge-Signature", fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil))))
	return req
}

func messagePayload(id, body, phone string) []byte {
	return []byte(fmt.Sprintf(
		`{"event":"message.received","properties":{"id":%q,"content":%q,"contact":{"phone_number":%q}}}`,
		id, body, phone))
}

func TestWebhook_invalidSignatureWritesNothing(t *testing.T) {
	s := newTestStack(t)

	body := messagePayload("msg_sig", "hello", "+15551234567")
	req, err := http.NewRequest(http.MethodPost, s.Server.URL+"/webhook", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Surge-Signature", "t=123,v1=deadbeef")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var count int
	require.NoError(t, s.DB.QueryRow(`SELECT COUNT(*) FROM inbound_messages`).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestWebhook_fullPipelineAggregatesSameDay(t *testing.T) {
	s := newTestStack(t)
	userID := s.createUser(t, "+15551234567", true, true)

	for i, body := range []string{"Hello", "World"} {
		resp, err := http.DefaultClient.Do(signedRequest(t, s.Server.URL, messagePayload(fmt.Sprintf("msg_%d", i), body, "+15551234567")))
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	var count int
	require.NoError(t, s.DB.QueryRow(`SELECT COUNT(*) FROM journal_entries`).Scan(&count))
	require.Equal(t, 1, count)

	entry, err := s.Entries.GetByUserAndDate(context.Background(),
		userID, time.Now().UTC(), model.SourceSMS)
	require.NoError(t, err)

	content, err := crypto.NewCodec().Decrypt(entry.Content, userID.String())
	require.NoError(t, err)
	assert.Equal(t, "Hello\n\nWorld", content)
}

func TestWebhook_duplicateDeliveryIsIdempotent(t *testing.T) {
	s := newTestStack(t)
	s.createUser(t, "+15551234567", true, true)

	body := messagePayload("msg_dup", "Hello", "+15551234567")
	for i := 0; i < 2; i++ {
		resp, err := http.DefaultClient.Do(signedRequest(t, s.Server.URL, body))
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	var count int
	require.NoError(t, s.DB.QueryRow(`SELECT COUNT(*) FROM inbound_messages`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestWebhook_concurrentSameDayAppendsLoseNothing(t *testing.T) {
	s := newTestStack(t)
	userID := s.createUser(t, "+15551234567", true, true)

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload := messagePayload(fmt.Sprintf("msg_c_%d", i), fmt.Sprintf("line-%d", i), "+15551234567")
			resp, err := http.DefaultClient.Do(signedRequest(t, s.Server.URL, payload))
			if err == nil {
				resp.Body.Close()
			}
		}(i)
	}
	wg.Wait()

	var count int
	require.NoError(t, s.DB.QueryRow(`SELECT COUNT(*) FROM journal_entries`).Scan(&count))
	require.Equal(t, 1, count, "advisory lock must prevent double-create")

	entry, err := s.Entries.GetByUserAndDate(context.Background(), userID, time.Now().UTC(), model.SourceSMS)
	require.NoError(t, err)
	content, err := crypto.NewCodec().Decrypt(entry.Content, userID.String())
	require.NoError(t, err)
	for i := 0; i < workers; i++ {
		assert.Contains(t, content, fmt.Sprintf("line-%d", i), "no append may be lost")
	}
}

func TestWebhook_rateLimitEleventhMessageRejected(t *testing.T) {
	s := newTestStack(t)
	s.createUser(t, "+15551234567", true, true)

	for i := 1; i <= 10; i++ {
		resp, err := http.DefaultClient.Do(signedRequest(t, s.Server.URL, messagePayload(fmt.Sprintf("msg_rl_%d", i), "x", "+15551234567")))
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode, "message %d should pass", i)
	}

	resp, err := http.DefaultClient.Do(signedRequest(t, s.Server.URL, messagePayload("msg_rl_11", "x", "+15551234567")))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestWebhook_phoneFormatVariantsResolve(t *testing.T) {
	s := newTestStack(t)
	s.createUser(t, "+15551234567", true, true)

	for i, raw := range []string{"5551234567", "+15551234567", "(555) 123-4567", "15551234567"} {
		resp, err := http.DefaultClient.Do(signedRequest(t, s.Server.URL, messagePayload(fmt.Sprintf("msg_pf_%d", i), "hi", raw)))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, "variant %q must resolve", raw)
	}
}

func TestWebhook_verificationHandshake(t *testing.T) {
	s := newTestStack(t)
	userID := s.createUser(t, "+15551234567", false, true)

	resp, err := http.DefaultClient.Do(signedRequest(t, s.Server.URL, messagePayload("msg_v1", "yes", "+15551234567")))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	user, err := s.Users.GetByID(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, user.PhoneVerified)

	var entries int
	require.NoError(t, s.DB.QueryRow(`SELECT COUNT(*) FROM journal_entries`).Scan(&entries))
	assert.Equal(t, 0, entries)
}

func TestWebhook_unsubscribedIs403(t *testing.T) {
	s := newTestStack(t)
	s.createUser(t, "+15551234567", true, false)

	resp, err := http.DefaultClient.Do(signedRequest(t, s.Server.URL, messagePayload("msg_sub", "hello", "+15551234567")))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	var entries int
	require.NoError(t, s.DB.QueryRow(`SELECT COUNT(*) FROM journal_entries`).Scan(&entries))
	assert.Equal(t, 0, entries)
}
