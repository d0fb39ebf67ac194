package mailer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
)

// fakeSender records messages instead of dialing a server
type fakeSender struct {
	msgs []*mail.Msg
	err  error
}

func (f *fakeSender) DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error {
	f.msgs = append(f.msgs, messages...)
	return f.err
}

var fixedNow = func() time.Time { return time.Date(2025, 6, 10, 17, 30, 0, 0, time.UTC) }

func testConfig() Config {
	return Config{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "reports@example.com",
		Password: "secret",
		From:     "reports@example.com",
		To:       []string{"desk@example.com", "pm@example.com"},
		Bcc:      []string{"audit@example.com"},
	}
}

func render(t *testing.T, msg *mail.Msg) (headers, body string) {
	t.Helper()
	var buf bytes.Buffer
	_, err := msg.WriteTo(&buf)
	require.NoError(t, err)
	headers, body, found := strings.Cut(buf.String(), "\r\n\r\n")
	require.True(t, found)
	return headers, body
}

func headerLine(headers, name string) string {
	for _, line := range strings.Split(headers, "\r\n") {
		if strings.HasPrefix(line, name+": ") {
			return line
		}
	}
	return ""
}

func TestSubject(t *testing.T) {
	day := time.Date(2025, 6, 10, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "Daily Market Report - 2025-06-10", Subject("Daily Market Report", day))
}

func TestSend(t *testing.T) {
	sender := &fakeSender{}
	m, err := New(testConfig(), WithSender(sender), WithClock(fixedNow))
	require.NoError(t, err)

	err = m.Send(context.Background(), "Daily Market Report - 2025-06-10", "<html><body>report</body></html>")
	require.NoError(t, err)
	require.Len(t, sender.msgs, 1)

	recipients, err := sender.msgs[0].GetRecipients()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"desk@example.com", "pm@example.com", "audit@example.com"}, recipients)

	headers, body := render(t, sender.msgs[0])
	assert.Contains(t, headerLine(headers, "From"), "reports@example.com")
	assert.Contains(t, headerLine(headers, "To"), "desk@example.com")
	assert.Contains(t, headerLine(headers, "To"), "pm@example.com")
	assert.Equal(t, "Subject: Daily Market Report - 2025-06-10", headerLine(headers, "Subject"))
	assert.Contains(t, headerLine(headers, "Date"), "10 Jun 2025 17:30:00")
	assert.Contains(t, headers, "text/html")
	assert.Contains(t, body, "<html><body>report</body></html>")
	assert.NotContains(t, headers, "audit@example.com")
	assert.Empty(t, headerLine(headers, "Bcc"))
}

func TestSend_BccOnly(t *testing.T) {
	sender := &fakeSender{}
	cfg := testConfig()
	cfg.To = nil
	m, err := New(cfg, WithSender(sender), WithClock(fixedNow))
	require.NoError(t, err)

	require.NoError(t, m.Send(context.Background(), "s", "b"))

	require.Len(t, sender.msgs, 1)
	recipients, err := sender.msgs[0].GetRecipients()
	require.NoError(t, err)
	assert.Equal(t, []string{"audit@example.com"}, recipients)

	headers, _ := render(t, sender.msgs[0])
	assert.NotContains(t, headers, "audit@example.com")
}

func TestSend_NoRecipients(t *testing.T) {
	sender := &fakeSender{}
	cfg := testConfig()
	cfg.To, cfg.Bcc = nil, nil
	m, err := New(cfg, WithSender(sender))
	require.NoError(t, err)

	err = m.Send(context.Background(), "s", "b")

	assert.ErrorIs(t, err, ErrNoRecipients)
	assert.Empty(t, sender.msgs)
}

func TestSend_InvalidAddress(t *testing.T) {
	sender := &fakeSender{}
	cfg := testConfig()
	cfg.From = "not an address"
	m, err := New(cfg, WithSender(sender))
	require.NoError(t, err)

	err = m.Send(context.Background(), "s", "b")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid from address")
	assert.Empty(t, sender.msgs)
}

func TestSend_TransportError(t *testing.T) {
	boom := errors.New("535 authentication failed")
	m, err := New(testConfig(), WithSender(&fakeSender{err: boom}))
	require.NoError(t, err)

	err = m.Send(context.Background(), "s", "b")

	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "smtp.example.com:587")
}

func TestNewClient(t *testing.T) {
	client, err := NewClient(testConfig())
	require.NoError(t, err)
	assert.NotNil(t, client)

	anonymous := testConfig()
	anonymous.Username, anonymous.Password = "", ""
	_, err = NewClient(anonymous)
	assert.NoError(t, err)
}

func TestNew_WithoutHost(t *testing.T) {
	cfg := testConfig()
	cfg.Host = ""

	_, err := New(cfg)

	assert.Error(t, err)
}
