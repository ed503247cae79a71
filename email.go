package main

import (
	"bytes"
	"fmt"
	"log"
	"net/smtp"
	"strings"
	"sync"
	"text/template"
)

// Mailer sends a single message. Implementations are best-effort; the
// service never blocks a response on a send.
type Mailer interface {
	Send(to, subject, body string) error
}

// smtpMailer delivers through a plain SMTP relay.
type smtpMailer struct {
	addr string
	from string
}

func NewSMTPMailer(addr, from string) Mailer {
	return &smtpMailer{addr: addr, from: from}
}

func (m *smtpMailer) Send(to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n", m.from, to, subject, body)
	return smtp.SendMail(m.addr, nil, m.from, []string{to}, []byte(msg))
}

// logMailer is the fallback when no SMTP relay is configured. Bodies are
// logged with the token link intact, which is convenient in development.
type logMailer struct{}

func (logMailer) Send(to, subject, body string) error {
	log.Printf("mail (not sent): to=%s subject=%q", to, subject)
	return nil
}

var verificationEmailTemplate = template.Must(template.New("verify").Parse(`Welcome!

Please verify your email by opening the link below:

{{.Domain}}/verify-email?token={{.Token}}

This link will expire in 1 hour.
`))

var resetEmailTemplate = template.Must(template.New("reset").Parse(`To reset your password, open the link below:

{{.Domain}}/reset-password?token={{.Token}}

This link will expire in 15 minutes.

If you did not request a password reset, you can ignore this email.
`))

func renderEmail(t *template.Template, domain, token string) string {
	var buf bytes.Buffer
	if err := t.Execute(&buf, struct{ Domain, Token string }{strings.TrimRight(domain, "/"), token}); err != nil {
		log.Printf("render email template: %v", err)
	}
	return buf.String()
}

type mailJob struct {
	to      string
	subject string
	body    string
}

// MailDispatcher decouples email delivery from request handling. Jobs are
// queued to a background worker; a full queue drops the job rather than
// delaying the caller.
type MailDispatcher struct {
	mailer Mailer
	ch     chan mailJob
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

func NewMailDispatcher(m Mailer, buffer int) *MailDispatcher {
	if buffer <= 0 {
		buffer = 16
	}
	d := &MailDispatcher{
		mailer: m,
		ch:     make(chan mailJob, buffer),
		done:   make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *MailDispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case job := <-d.ch:
			d.deliver(job)
		case <-d.done:
			// drain whatever was queued before shutdown
			for {
				select {
				case job := <-d.ch:
					d.deliver(job)
				default:
					return
				}
			}
		}
	}
}

func (d *MailDispatcher) deliver(job mailJob) {
	if err := d.mailer.Send(job.to, job.subject, job.body); err != nil {
		log.Printf("send mail to %s: %v", job.to, err)
	}
}

// Enqueue never blocks and never fails the caller.
func (d *MailDispatcher) Enqueue(to, subject, body string) {
	if d == nil {
		return
	}
	select {
	case d.ch <- mailJob{to: to, subject: subject, body: body}:
	case <-d.done:
	default:
		log.Printf("mail queue full, dropping message to %s", to)
	}
}

func (d *MailDispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		close(d.done)
		d.wg.Wait()
	})
}
