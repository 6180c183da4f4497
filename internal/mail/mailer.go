// Package mail はワンタイムコードのメール配送機能を提供する。
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// Config はSMTP接続の設定を保持する。
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Mailer はSMTP経由でワンタイムコードを配送する。
// auth.Notifierインターフェースを実装する。
type Mailer struct {
	config Config

	// sendFunc はテスト時に差し替え可能なSMTP送信関数。
	sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewMailer はMailerを生成する。
func NewMailer(config Config) *Mailer {
	return &Mailer{
		config:   config,
		sendFunc: smtp.SendMail,
	}
}

// Deliver はワンタイムコードを指定アドレスへメールで送信する。
// 送信失敗はエラーとして返し、呼び出し側で配送失敗として扱う。
// コード本体はログに出力しない。
func (m *Mailer) Deliver(ctx context.Context, email, code string, expiresAt time.Time) error {
	addr := net.JoinHostPort(m.config.Host, strconv.Itoa(m.config.Port))

	var auth smtp.Auth
	if m.config.Username != "" {
		auth = smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)
	}

	msg := m.buildMessage(email, code, expiresAt)

	// net/smtpはcontextを受け取らないため、送信をgoroutineに逃がして
	// キャンセルと競合させる。
	done := make(chan error, 1)
	go func() {
		done <- m.sendFunc(addr, auth, m.config.From, []string{email}, msg)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("mail delivery cancelled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send to %s failed: %w", email, err)
		}
	}

	slog.Info("ワンタイムコードを配送しました",
		slog.String("email", email),
		slog.Time("expires_at", expiresAt),
	)
	return nil
}

// buildMessage はRFC 5322形式のメール本文を組み立てる。
// 件名は日本語を含むためMIMEエンコードする。
func (m *Mailer) buildMessage(email, code string, expiresAt time.Time) []byte {
	subject := mime.QEncoding.Encode("utf-8", "ログインコードのお知らせ")

	minutes := int(time.Until(expiresAt).Round(time.Minute).Minutes())
	if minutes < 1 {
		minutes = 1
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.config.From)
	fmt.Fprintf(&b, "To: %s\r\n", email)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "ログインコード: %s\r\n", code)
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "このコードは約%d分間有効です。\r\n", minutes)
	b.WriteString("心当たりがない場合はこのメールを無視してください。\r\n")

	return []byte(b.String())
}
