package web

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/jaminalder/tictactoe-web/internal/app"
	"github.com/jaminalder/tictactoe-web/internal/domain"
)

const cookieName = "session_id"

// Player colors, and the background of a winning line per player.
var (
	markColor = map[domain.Cell]string{domain.X: "#e74c3c", domain.O: "#3498db"}
	winColor  = map[domain.Cell]string{domain.X: "#fad7d4", domain.O: "#d4e6f1"}
)

type templates struct {
	page  *template.Template
	board *template.Template
}

func loadTemplates() *templates {
	page := template.Must(template.New("page").Parse(pageTemplate))
	template.Must(page.New("board").Parse(boardTemplate))
	board := template.Must(template.New("board_only").Parse(boardTemplate))
	return &templates{page: page, board: board}
}

func renderTemplate(t *template.Template, data any) []byte {
	var buf bytes.Buffer
	_ = t.Execute(&buf, data)
	return buf.Bytes()
}

type cellView struct {
	Index      int
	Symbol     string
	Color      string
	Background string
	Playable   bool
}

type boardView struct {
	ID      string
	Mode    string
	VsAI    bool
	Message string
	Turn    string
	Cells   [9]cellView
	XWins   int
	OWins   int
	Draws   int
}

func newBoardView(gs app.GameState) boardView {
	s := gs.Session
	v := boardView{
		ID:      gs.ID,
		Mode:    string(s.Mode()),
		VsAI:    s.VsAI,
		Message: s.Message(),
		XWins:   gs.Tally.X,
		OWins:   gs.Tally.O,
		Draws:   gs.Tally.Draws,
	}
	if s.Active {
		v.Turn = s.Current.String()
	}
	humanTurn := s.Active && !(s.VsAI && s.Current == gs.AIMark)
	for i, c := range s.Board {
		v.Cells[i] = cellView{
			Index:    i,
			Symbol:   c.String(),
			Color:    markColor[c],
			Playable: humanTurn && c == domain.Empty,
		}
		if s.Outcome.OnLine(i) {
			v.Cells[i].Background = winColor[s.Outcome.Winner]
		}
	}
	return v
}

const pageTemplate = `<!doctype html><html><head>
<meta charset="utf-8"/>
<title>Tic Tac Toe</title>
<script src="https://unpkg.com/htmx.org@1.9.12"></script>
<script src="https://unpkg.com/htmx.org/dist/ext/sse.js"></script>
<style>
.grid{display:grid;grid-template-columns:repeat(3,80px);gap:4px}
.cell{width:80px;height:80px;font-size:48px;font-weight:bold;background:#fff;border:1px solid #999}
.modes .active{background:#2c3e50;color:#fff}
</style>
</head><body>
<h1>Tic Tac Toe</h1>
<div hx-ext="sse" hx-sse="connect:/events">
  <div id="game" hx-sse="swap:board">{{template "board" .}}</div>
</div>
</body></html>`

const boardTemplate = `
<div id="board">
  <div class="modes">
    <button hx-post="/mode" hx-vals='{"mode":"two"}' hx-target="#board" hx-swap="outerHTML"{{if not .VsAI}} class="active"{{end}}>Two players</button>
    <button hx-post="/mode" hx-vals='{"mode":"ai"}' hx-target="#board" hx-swap="outerHTML"{{if .VsAI}} class="active"{{end}}>Play vs AI</button>
  </div>
  <div class="grid">
    {{range .Cells}}
    <button class="cell" data-index="{{.Index}}" name="index" value="{{.Index}}"
      {{if .Playable}}hx-post="/cell" hx-target="#board" hx-swap="outerHTML"{{else}}disabled{{end}}
      style="{{with .Color}}color:{{.}};{{end}}{{with .Background}}background-color:{{.}};{{end}}">{{.Symbol}}</button>
    {{end}}
  </div>
  <p id="message">{{.Message}}</p>
  {{if .Turn}}<p class="turn">Turn: {{.Turn}}</p>{{end}}
  <button id="reset" hx-post="/reset" hx-target="#board" hx-swap="outerHTML">Reset</button>
  <p class="tally">X {{.XWins}} &middot; O {{.OWins}} &middot; Draws {{.Draws}}</p>
</div>
`

// ensureSessionCookie returns the browser's session ID, issuing a new one
// when the cookie is missing or malformed.
func ensureSessionCookie(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(cookieName); err == nil && app.ValidID(c.Value) {
		return c.Value
	}
	v := app.NewID()
	http.SetCookie(w, &http.Cookie{Name: cookieName, Value: v, Path: "/", HttpOnly: true, SameSite: http.SameSiteLaxMode})
	return v
}
