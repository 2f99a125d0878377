package accounts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/wneessen/go-mail"
)

// NotificationKind selects the message sent for a staged change
type NotificationKind string

const (
	NotifyVerification  NotificationKind = "verification"
	NotifyEmailChange   NotificationKind = "email_change"
	NotifyPasswordReset NotificationKind = "password_reset"
)

// Notification is an out of band message carrying a confirmation token
type Notification struct {
	Kind  NotificationKind
	To    string
	Token string
	Link  string
}

// Notifier delivers notifications. Workflows call it after the staging
// transaction commits and only log its failures.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Send(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// NewNotification builds the notification for kind, including the frontend link
func NewNotification(kind NotificationKind, to, token, frontendURL string) Notification {
	path := "/verify"
	if kind == NotifyPasswordReset {
		path = "/reset-password"
	}

	link := strings.TrimRight(frontendURL, "/") + path + "?token=" + url.QueryEscape(token)

	return Notification{
		Kind:  kind,
		To:    to,
		Token: token,
		Link:  link,
	}
}

func notificationKindFor(kind ChangeKind) NotificationKind {
	switch kind {
	case ChangeEmail:
		return NotifyEmailChange
	case ChangePasswordReset:
		return NotifyPasswordReset
	default:
		return NotifyVerification
	}
}

// LogNotifier writes notifications to a writer instead of sending them
type LogNotifier struct {
	out io.Writer
}

func NewLogNotifier(out io.Writer) *LogNotifier {
	if out == nil {
		out = os.Stdout
	}
	return &LogNotifier{out: out}
}

func (n *LogNotifier) Send(ctx context.Context, msg Notification) error {
	_, err := fmt.Fprintf(n.out,
		"====== SENDING EMAIL NOTIFICATION =======\nkind: %s\nto: %s\nlink: %s\n",
		msg.Kind, msg.To, msg.Link,
	)
	return err
}

type mailTemplate struct {
	subject string
	body    *template.Template
}

var defaultMailTemplates = map[NotificationKind]mailTemplate{
	NotifyVerification: {
		subject: "Verify your email",
		body: template.Must(template.New("verification").Parse(
			"Click the link below to verify your email:\n{{.Link}}\n\n" +
				"This link will expire in 24 hours.\n",
		)),
	},
	NotifyEmailChange: {
		subject: "Verify your new email",
		body: template.Must(template.New("email_change").Parse(
			"Click the link below to confirm {{.To}} as your new email address:\n{{.Link}}\n\n" +
				"This link will expire in 24 hours.\n",
		)),
	},
	NotifyPasswordReset: {
		subject: "Reset your password",
		body: template.Must(template.New("password_reset").Parse(
			"Hi,\n\nWe received a request to reset your password. " +
				"Click the link below to set a new password. This link will expire in 30 minutes.\n\n" +
				"{{.Link}}\n\n" +
				"If you didn't request a password reset, please ignore this email.\n",
		)),
	},
}

type sendMailFunc func(ctx context.Context, msg *mail.Msg) error

// MailNotifier sends plain text emails over SMTP
type MailNotifier struct {
	from      string
	client    *mail.Client
	templates map[NotificationKind]mailTemplate
	send      sendMailFunc
}

// NewMailNotifier returns a notifier sending through the SMTP server at host:port.
// Authentication is skipped when username is empty.
func NewMailNotifier(host string, port int, username, password, from string) (*MailNotifier, error) {
	opts := []mail.Option{
		mail.WithPort(port),
		mail.WithTimeout(10 * time.Second),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(username),
			mail.WithPassword(password),
		)
	}

	client, err := mail.NewClient(host, opts...)
	if err != nil {
		return nil, fmt.Errorf("mail client: %w", err)
	}

	return &MailNotifier{
		from:      from,
		client:    client,
		templates: defaultMailTemplates,
		send: func(ctx context.Context, msg *mail.Msg) error {
			return client.DialAndSendWithContext(ctx, msg)
		},
	}, nil
}

func (m *MailNotifier) Send(ctx context.Context, n Notification) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	msg, err := m.render(n)
	if err != nil {
		return err
	}

	if err := m.send(ctx, msg); err != nil {
		return ErrUnavailable(err, "failed to send email")
	}

	return nil
}

func (m *MailNotifier) render(n Notification) (*mail.Msg, error) {
	tpl, ok := m.templates[n.Kind]
	if !ok {
		return nil, fmt.Errorf("no mail template for notification %q", n.Kind)
	}

	var body bytes.Buffer
	if err := tpl.body.Execute(&body, n); err != nil {
		return nil, fmt.Errorf("render %s mail: %w", n.Kind, err)
	}

	msg := mail.NewMsg(mail.WithEncoding(mail.NoEncoding))
	if err := msg.From(m.from); err != nil {
		return nil, fmt.Errorf("mail sender %q: %w", m.from, err)
	}
	if err := msg.To(n.To); err != nil {
		return nil, fmt.Errorf("mail recipient %q: %w", n.To, err)
	}
	msg.Subject(tpl.subject)
	msg.SetBodyString(mail.TypeTextPlain, body.String())

	return msg, nil
}
