package dispatch

import "fmt"

// RenderBody formats the consent request message. When a consent URL is
// available the target clicks through; otherwise they reply in-band.
func RenderBody(p Payload) string {
	greeting := "Hi"
	if p.Target.Name != "" {
		greeting = "Hi " + p.Target.Name
	}
	requester := p.Requester.Name
	if requester == "" {
		requester = "Someone"
	}
	if p.ConsentURL != "" {
		return fmt.Sprintf("%s, %s requests AI agent consent for: %s. Click to grant consent: %s",
			greeting, requester, p.Scope, p.ConsentURL)
	}
	return fmt.Sprintf("%s, %s is requesting AI agent consent for: %s. Reply YES to grant or NO to decline.",
		greeting, requester, p.Scope)
}

// RenderSubject formats the email subject line.
func RenderSubject(p Payload) string {
	requester := p.Requester.Name
	if requester == "" {
		requester = "Someone"
	}
	return fmt.Sprintf("%s is requesting your consent", requester)
}
