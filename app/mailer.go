package app

import (
	"fmt"
	"strconv"

	"school_equipment_portal/config"
	"school_equipment_portal/models"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// Mailer 发送邀请邮件；未配置 SMTP 时只打印链接（开发模式）
type Mailer struct {
	Host     string // SMTP_HOST, e.g. smtp.gmail.com
	Port     int    // SMTP_PORT, e.g. 587
	Username string
	Password string
	From     string // 为空时回退 Username
	AppName  string
}

func LoadMailer() *Mailer {
	return &Mailer{
		Host:     config.Get("SMTP_HOST", ""),
		Port:     config.GetInt("SMTP_PORT", 587),
		Username: config.Get("SMTP_USERNAME", ""),
		Password: config.Get("SMTP_PASSWORD", ""),
		From:     config.Get("SMTP_FROM", ""),
		AppName:  config.Get("APP_NAME", "School Equipment Portal"),
	}
}

func (m *Mailer) Enabled() bool {
	return m != nil && m.Host != "" && (m.Username != "" || m.From != "")
}

func (m *Mailer) SendInvite(to, link string, role models.Role, expiresDays int) error {
	if !m.Enabled() {
		zap.S().Infof("[DEV] invite link for %s (%s): %s (expires in %d day(s))", to, role, link, expiresDays)
		return nil
	}
	from := m.From
	if from == "" {
		from = m.Username
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", from, m.AppName)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", fmt.Sprintf("%s Invitation", m.AppName))
	msg.SetBody("text/html", fmt.Sprintf(`
<div style="font-family:Arial,sans-serif; font-size:14px; color:#222">
  <p>Hello,</p>
  <p>You have been invited to join <b>%s</b> as <b>%s</b>. Open the link below to create your passkey and sign in:</p>
  <p><a href="%s">%s</a></p>
  <p>This invitation will expire in %d day(s).</p>
</div>
`, m.AppName, role, link, link, expiresDays))

	d := gomail.NewDialer(m.Host, m.Port, m.Username, m.Password)
	if err := d.DialAndSend(msg); err != nil {
		return fmt.Errorf("send invite to %s via %s:%s: %w", to, m.Host, strconv.Itoa(m.Port), err)
	}
	return nil
}
