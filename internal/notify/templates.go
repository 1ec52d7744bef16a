package notify

import (
	"bytes"
	"html/template"
)

var templates = template.Must(template.New("mail").Parse(`
{{define "welcome"}}<p>Hi {{.Name}},</p>
<p>Welcome to {{.Shop}}. Your account is ready.</p>{{end}}

{{define "reset"}}<p>Hi {{.Name}},</p>
<p>We received a request to reset your password. The link below is valid for {{.TTL}}.</p>
<p><a href="{{.Link}}">Reset password</a></p>
<p>If you did not ask for this, you can ignore this email.</p>{{end}}

{{define "order"}}<p>Hi {{.Name}},</p>
<p>{{.Headline}}</p>
<p>Order: <b>{{.OrderID}}</b></p>
{{if .Amount}}<p>Amount: {{.Amount}}</p>{{end}}{{end}}
`))

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
