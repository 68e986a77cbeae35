package mail

import (
	"fmt"
	"html/template"

	"github.com/valyala/bytebufferpool"
)

var loginCodeTemplate = template.Must(template.New("login-code").Parse(`
<p>Your verification code is:</p>
<p style="font-size:24px;letter-spacing:4px;"><strong>{{.Code}}</strong></p>
<p>The code expires in {{.ExpireMinutes}} minutes. If you did not try to sign
in, you can ignore this email.</p>
`))

var resetCodeTemplate = template.Must(template.New("reset-code").Parse(`
<p>A password reset was requested for your account.</p>
<p>Your reset code is:</p>
<p style="font-size:24px;letter-spacing:4px;"><strong>{{.Code}}</strong></p>
<p>The code expires in {{.ExpireMinutes}} minutes. If you did not request a
reset, your password is still safe and no action is needed.</p>
`))

func renderTemplate(tmpl *template.Template, data any) (string, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if err := tmpl.Execute(buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func SendLoginCode(sender Sender, toEmail string, code string) error {
	body, err := renderTemplate(loginCodeTemplate, map[string]any{
		"Code":          code,
		"ExpireMinutes": 10,
	})
	if err != nil {
		return err
	}
	return sender.Send(&Message{
		To:      []string{toEmail},
		Subject: fmt.Sprintf("%s is your verification code", code),
		Body:    body,
		IsHTML:  true,
	})
}

func SendPasswordResetCode(sender Sender, toEmail string, code string) error {
	body, err := renderTemplate(resetCodeTemplate, map[string]any{
		"Code":          code,
		"ExpireMinutes": 10,
	})
	if err != nil {
		return err
	}
	return sender.Send(&Message{
		To:      []string{toEmail},
		Subject: "Reset your password",
		Body:    body,
		IsHTML:  true,
	})
}
