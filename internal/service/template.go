package service

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var templates = template.Must(template.New("mail").Parse(`
{{define "purchase"}}<div style="font-family:Arial,sans-serif">
<h2>¡Gracias por tu compra, {{.Name}}!</h2>
<p>Tu libro está listo. Podés descargarlo una sola vez desde este enlace, válido por 24 horas:</p>
<p><a href="{{.DownloadURL}}">Descargar libro</a></p>
<p>Si el enlace expira, respondé este correo y te ayudamos.</p>
</div>{{end}}

{{define "courseAccess"}}<div style="font-family:Arial,sans-serif">
<h2>¡Hola {{.Name}}!</h2>
<p>Tu acceso a <strong>{{.CourseTitle}}</strong> ya está activo.</p>
<p><a href="{{.CourseURL}}">Ir al curso</a></p>
</div>{{end}}

{{define "reset"}}<div style="font-family:Arial,sans-serif">
<h2>Restablecer contraseña</h2>
<p>Hola {{.Name}}, recibimos un pedido para restablecer tu contraseña.</p>
<p><a href="{{.ResetURL}}">Elegir una nueva contraseña</a></p>
<p>El enlace vence en una hora. Si no fuiste vos, ignorá este correo.</p>
</div>{{end}}
`))

var subjects = map[NotificationKind]string{
	NotificationPurchase:     "Gracias por tu compra – Tu descarga está lista",
	NotificationCourseAccess: "Acceso confirmado – %s",
	NotificationReset:        "Restablecer contraseña",
}

var (
	textPolicy = bluemonday.StrictPolicy()
	blankLines = regexp.MustCompile(`\n\s*\n+`)
)

// renderTemplate returns subject and HTML body for a notification. It has no
// side effects.
func renderTemplate(n *Notification) (string, string, error) {
	subject, ok := subjects[n.Kind]
	if !ok {
		return "", "", fmt.Errorf("unknown notification kind %q", n.Kind)
	}
	if n.Kind == NotificationCourseAccess {
		subject = fmt.Sprintf(subject, n.CourseTitle)
	}

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, string(n.Kind), n); err != nil {
		return "", "", fmt.Errorf("render %s template: %w", n.Kind, err)
	}

	return subject, strings.TrimSpace(buf.String()), nil
}

// htmlToText strips tags for the plain-text alternative part.
func htmlToText(body string) string {
	text := html.UnescapeString(textPolicy.Sanitize(body))
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	text = strings.Join(lines, "\n")
	return strings.TrimSpace(blankLines.ReplaceAllString(text, "\n\n"))
}
