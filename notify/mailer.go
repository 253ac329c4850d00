/*
mailer.go - Email notifications for contract lifecycle events

PURPOSE:
  Implements the contract.Notifier collaborator over SMTP. Policy holders
  get an email when one of their contracts is created, changes state, or
  is countered with a request for changes.

DELIVERY SEMANTICS:
  Best effort. The contract service logs a failed delivery and moves on;
  a mail outage never blocks a lifecycle transition.

LOCALIZATION:
  Bodies exist in English and French. The language is fixed per deployment
  (MAIL_LANG env var), matching how the surrounding platform localizes.

CONFIGURATION (environment):
  SMTP_HOST, SMTP_PORT, SMTP_USER, SMTP_PASSWORD, MAIL_FROM, MAIL_LANG

SEE ALSO:
  - contract/store.go: Notifier interface and event constants
*/
package notify

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"

	"gopkg.in/gomail.v2"

	"github.com/warp/contract-engine/contract"
)

// Mailer sends lifecycle emails through an SMTP relay.
type Mailer struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Lang     string // "en" or "fr"

	Logger *log.Logger

	// send is swappable for tests.
	send func(m *gomail.Message) error
}

// New creates a mailer for the given relay.
func New(host string, port int, username, password, from string) *Mailer {
	m := &Mailer{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		From:     from,
		Lang:     "en",
		Logger:   log.Default(),
	}
	m.send = func(msg *gomail.Message) error {
		d := gomail.NewDialer(m.Host, m.Port, m.Username, m.Password)
		return d.DialAndSend(msg)
	}
	return m
}

// NewFromEnv builds a mailer from SMTP_* environment variables. Returns
// nil when SMTP_HOST is unset so callers can fall back to the nop notifier.
func NewFromEnv() *Mailer {
	host := os.Getenv("SMTP_HOST")
	if host == "" {
		return nil
	}
	port, err := strconv.Atoi(os.Getenv("SMTP_PORT"))
	if err != nil || port == 0 {
		port = 587
	}
	m := New(host, port, os.Getenv("SMTP_USER"), os.Getenv("SMTP_PASSWORD"), os.Getenv("MAIL_FROM"))
	if lang := os.Getenv("MAIL_LANG"); lang != "" {
		m.Lang = lang
	}
	return m
}

// Notify implements contract.Notifier.
func (m *Mailer) Notify(ctx context.Context, event contract.Event, c *contract.Contract, holder *contract.PolicyHolder) error {
	if holder.Email == "" {
		m.Logger.Printf("[Mail] no email address for policy holder %s, skipping %s", holder.Code, event)
		return nil
	}

	subject, body := m.compose(event, c, holder)
	if subject == "" {
		return nil
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.From)
	msg.SetHeader("To", holder.Email)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := m.send(msg); err != nil {
		return fmt.Errorf("send %s to %s: %w", event, holder.Email, err)
	}
	m.Logger.Printf("[Mail] sent %s for contract %s to %s", event, c.Code, holder.Email)
	return nil
}

// compose picks the subject and body for an event. An empty subject means
// the event carries no email.
func (m *Mailer) compose(event contract.Event, c *contract.Contract, holder *contract.PolicyHolder) (string, string) {
	name := holder.ContactName
	if name == "" {
		name = holder.TradeName
	}

	switch event {
	case contract.EventContractCreated:
		return m.createdMail(name, c)
	case contract.EventContractUpdated:
		if c.State == contract.StateExecutable {
			return m.approvedMail(name, c)
		}
		return m.updatedMail(name, c)
	case contract.EventContractCounter:
		return m.counterMail(name, c)
	case contract.EventPaymentCreated:
		return m.approvedMail(name, c)
	}
	return "", ""
}

func (m *Mailer) createdMail(name string, c *contract.Contract) (string, string) {
	if m.Lang == "fr" {
		return fmt.Sprintf("Contrat %s créé", c.Code),
			fmt.Sprintf("Bonjour %s,\n\nVotre contrat %s a été créé et couvre la période du %s au %s.\n\nCordialement",
				name, c.Code, c.DateValidFrom.Format("02/01/2006"), c.DateValidTo.Format("02/01/2006"))
	}
	return fmt.Sprintf("Contract %s created", c.Code),
		fmt.Sprintf("Dear %s,\n\nYour contract %s has been created and covers %s to %s.\n\nRegards",
			name, c.Code, c.DateValidFrom.Format("2006-01-02"), c.DateValidTo.Format("2006-01-02"))
}

func (m *Mailer) updatedMail(name string, c *contract.Contract) (string, string) {
	if m.Lang == "fr" {
		return fmt.Sprintf("Contrat %s mis à jour", c.Code),
			fmt.Sprintf("Bonjour %s,\n\nVotre contrat %s est maintenant à l'état « %s ».\n\nCordialement",
				name, c.Code, c.State)
	}
	return fmt.Sprintf("Contract %s updated", c.Code),
		fmt.Sprintf("Dear %s,\n\nYour contract %s is now in state %q.\n\nRegards",
			name, c.Code, c.State)
}

// approvedMail carries the amount due and the bank reference the holder
// must quote on the transfer.
func (m *Mailer) approvedMail(name string, c *contract.Contract) (string, string) {
	due := "-"
	if c.DatePaymentDue != nil {
		if m.Lang == "fr" {
			due = c.DatePaymentDue.Format("02/01/2006")
		} else {
			due = c.DatePaymentDue.Format("2006-01-02")
		}
	}
	if m.Lang == "fr" {
		return fmt.Sprintf("Contrat %s approuvé", c.Code),
			fmt.Sprintf("Bonjour %s,\n\nVotre contrat %s a été approuvé.\nMontant dû : %s\nRéférence de paiement : %s\nÉchéance : %s\n\nCordialement",
				name, c.Code, c.AmountDue.StringFixed(2), c.PaymentReference, due)
	}
	return fmt.Sprintf("Contract %s approved", c.Code),
		fmt.Sprintf("Dear %s,\n\nYour contract %s has been approved.\nAmount due: %s\nPayment reference: %s\nPayment due: %s\n\nRegards",
			name, c.Code, c.AmountDue.StringFixed(2), c.PaymentReference, due)
}

func (m *Mailer) counterMail(name string, c *contract.Contract) (string, string) {
	if m.Lang == "fr" {
		return fmt.Sprintf("Contrat %s : modifications demandées", c.Code),
			fmt.Sprintf("Bonjour %s,\n\nDes modifications ont été demandées sur votre contrat %s. Veuillez le réviser et le soumettre à nouveau.\n\nCordialement",
				name, c.Code)
	}
	return fmt.Sprintf("Contract %s: changes requested", c.Code),
		fmt.Sprintf("Dear %s,\n\nChanges have been requested on your contract %s. Please revise and submit it again.\n\nRegards",
			name, c.Code)
}
