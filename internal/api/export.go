package api

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/skip2/go-qrcode"
)

func (s *Server) handleMeetingAgendaMarkdown(w http.ResponseWriter, r *http.Request) {
	meetingID, ok := s.pathID(w, r, "meeting_id")
	if !ok {
		return
	}
	md, err := s.prep.AgendaMarkdown(r.Context(), meetingID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	fmt.Fprint(w, md)
}

var agendaPage = template.Must(template.New("agenda").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body style="font-family: sans-serif; font-size: 15px; line-height: 1.5; max-width: 48em; margin: 2em auto;">
{{.Body}}
</body></html>
`))

// handleMeetingAgendaHTML renders the combined meeting agenda as a
// printable HTML page.
func (s *Server) handleMeetingAgendaHTML(w http.ResponseWriter, r *http.Request) {
	meetingID, ok := s.pathID(w, r, "meeting_id")
	if !ok {
		return
	}
	md, err := s.prep.AgendaMarkdown(r.Context(), meetingID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var body bytes.Buffer
	if err := s.markdown.Convert([]byte(md), &body); err != nil {
		s.fail(w, r, fmt.Errorf("render agenda: %w", err))
		return
	}

	title, _, _ := strings.Cut(strings.TrimPrefix(md, "# "), "\n")
	var page bytes.Buffer
	if err := agendaPage.Execute(&page, map[string]any{
		"Title": title,
		// goldmark escapes raw HTML unless WithUnsafe is set.
		"Body": template.HTML(body.String()),
	}); err != nil {
		s.fail(w, r, fmt.Errorf("render agenda page: %w", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page.Bytes())
}

// handleQRCode returns a PNG QR code linking to the participant's
// conversation, for joining the preparation from a phone.
func (s *Server) handleQRCode(w http.ResponseWriter, r *http.Request) {
	meetingID, userID, ok := s.conversationKey(w, r)
	if !ok {
		return
	}
	if _, err := s.records.GetMeeting(r.Context(), meetingID); err != nil {
		s.fail(w, r, err)
		return
	}
	if _, err := s.records.GetUser(r.Context(), userID); err != nil {
		s.fail(w, r, err)
		return
	}

	size := parseIntParam(r, "size", 256)
	if size < 64 || size > 1024 {
		size = 256
	}

	link := fmt.Sprintf("%s/meetings/%d/%d/conversation", s.baseURL(r), meetingID, userID)
	png, err := qrcode.Encode(link, qrcode.Medium, size)
	if err != nil {
		s.fail(w, r, fmt.Errorf("encode qr code: %w", err))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(png)
}

// baseURL is the configured public URL, or one derived from the
// request when none is set.
func (s *Server) baseURL(r *http.Request) string {
	if s.opts.PublicURL != "" {
		return strings.TrimRight(s.opts.PublicURL, "/")
	}
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
