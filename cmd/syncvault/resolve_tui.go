package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/openmined/syncvault/internal/crypto"
	"github.com/openmined/syncvault/internal/objstore"
	"github.com/openmined/syncvault/internal/reconcile"
	"github.com/openmined/syncvault/internal/resolve"
	"github.com/openmined/syncvault/internal/snapshot"
	"github.com/openmined/syncvault/internal/vfs"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// Strings
const (
	txtConflictTitle   = "Conflict: %s"
	txtConflictKind    = "both sides changed (%s)"
	txtSideDeleted     = "deleted"
	txtSideMissing     = "missing"
	txtDeletedLocally  = "Deleted locally, changed on the remote."
	txtDeletedRemotely = "Changed locally, deleted on the remote."
	txtBinaryPreview   = "Binary content: local %s, remote %s."
	txtNoPreview       = "No preview: %v"
	txtTruncated       = "(preview truncated)"
)

const (
	maxPreviewBytes   = 64 << 10
	defaultViewWidth  = 80
	defaultViewHeight = 12
	// lines used by everything but the preview
	chromeHeight = 14
)

// Styles
var (
	titleStyle    = cyan.Bold(true)
	selectedStyle = green.Bold(true)
	labelStyle    = lightGray
	hashStyle     = gray
)

type conflictChoice struct {
	decision resolve.Decision
	label    string
	binding  key.Binding
}

var conflictChoices = []conflictChoice{
	{resolve.KeepLocal, "Keep local", key.NewBinding(key.WithKeys("l"), key.WithHelp("l", "local"))},
	{resolve.KeepRemote, "Keep remote", key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "remote"))},
	{resolve.KeepBoth, "Keep both", key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "both"))},
	{resolve.Abort, "Abort sync", key.NewBinding(key.WithKeys("a", "esc", "ctrl+c"), key.WithHelp("a/esc", "abort"))},
}

var (
	keyUp     = key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up"))
	keyDown   = key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down"))
	keyChoose = key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "choose"))
)

// conflictModel asks for the decision on one record.
type conflictModel struct {
	rec     snapshot.ChangeRecord
	preview viewport.Model
	help    help.Model

	cursor   int
	decision resolve.Decision
	done     bool
}

func newConflictModel(rec snapshot.ChangeRecord, preview string) conflictModel {
	lines := strings.Count(preview, "\n") + 1
	vp := viewport.New(defaultViewWidth, min(lines, defaultViewHeight))
	vp.SetContent(preview)

	return conflictModel{
		rec:      rec,
		preview:  vp,
		help:     help.New(),
		decision: resolve.Abort,
	}
}

func (m conflictModel) Init() tea.Cmd {
	return nil
}

func (m conflictModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		for _, c := range conflictChoices {
			if key.Matches(msg, c.binding) {
				return m.choose(c.decision)
			}
		}
		switch {
		case key.Matches(msg, keyUp):
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil
		case key.Matches(msg, keyDown):
			if m.cursor < len(conflictChoices)-1 {
				m.cursor++
			}
			return m, nil
		case key.Matches(msg, keyChoose):
			return m.choose(conflictChoices[m.cursor].decision)
		}

	case tea.WindowSizeMsg:
		m.preview.Width = msg.Width
		m.preview.Height = max(3, min(m.preview.TotalLineCount(), msg.Height-chromeHeight))
		m.help.Width = msg.Width
	}

	var cmd tea.Cmd
	m.preview, cmd = m.preview.Update(msg)
	return m, cmd
}

func (m conflictModel) choose(d resolve.Decision) (tea.Model, tea.Cmd) {
	m.decision = d
	m.done = true
	return m, tea.Quit
}

func (m conflictModel) View() string {
	if m.done {
		return ""
	}

	var b strings.Builder
	fmt.Fprintln(&b, titleStyle.Render(fmt.Sprintf(txtConflictTitle, m.rec.Path)))
	fmt.Fprintln(&b, labelStyle.Render(fmt.Sprintf(txtConflictKind, m.rec.Kind)))
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("local: "), describeSide(m.rec.LocalHash, m.rec.LocalTimestamp, m.rec.LocalDeleted))
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("remote:"), describeSide(m.rec.RemoteHash, m.rec.RemoteTimestamp, m.rec.RemoteDeleted))
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, m.preview.View())
	fmt.Fprintln(&b)

	for i, c := range conflictChoices {
		if i == m.cursor {
			fmt.Fprintln(&b, selectedStyle.Render("> "+c.label))
		} else {
			fmt.Fprintln(&b, "  "+c.label)
		}
	}

	bindings := []key.Binding{keyUp, keyDown, keyChoose}
	for _, c := range conflictChoices {
		bindings = append(bindings, c.binding)
	}
	fmt.Fprintln(&b)
	b.WriteString(m.help.ShortHelpView(bindings))
	return b.String()
}

func describeSide(hash string, ts int64, deleted bool) string {
	switch {
	case deleted:
		return red.Render(txtSideDeleted)
	case hash == "":
		return gray.Render(txtSideMissing)
	default:
		return fmt.Sprintf("%s %s", hashStyle.Render(shortID(hash)), ago(ts))
	}
}

// conflictPrompter runs one conflictModel per conflicting record.
type conflictPrompter struct {
	work *vfs.FS
	mat  *reconcile.Materializer
	in   io.Reader
	out  io.Writer
}

// newConflictPrompter reads local content from the workspace and remote
// content from the pulled mirror.
func newConflictPrompter(s *session) *conflictPrompter {
	p := &conflictPrompter{
		work: s.ws.FS(),
		in:   os.Stdin,
		out:  os.Stdout,
	}
	if cipher, err := crypto.NewCipherFromHex(s.cfg.Key); err == nil {
		p.mat = reconcile.NewMaterializer(p.work, objstore.New(s.ws.RemotesFS(), cipher))
	}
	return p
}

func (p *conflictPrompter) Prompt(ctx context.Context, rec snapshot.ChangeRecord) (resolve.Decision, error) {
	m := newConflictModel(rec, p.preview(rec))
	final, err := tea.NewProgram(m,
		tea.WithContext(ctx),
		tea.WithInput(p.in),
		tea.WithOutput(p.out),
	).Run()
	if err != nil {
		return resolve.Abort, fmt.Errorf("conflict prompt: %w", err)
	}
	if fm, ok := final.(conflictModel); ok && fm.done {
		return fm.decision, nil
	}
	return resolve.Abort, nil
}

func (p *conflictPrompter) preview(rec snapshot.ChangeRecord) string {
	switch {
	case rec.LocalDeleted || rec.LocalHash == "":
		return txtDeletedLocally
	case rec.RemoteDeleted || rec.RemoteHash == "":
		return txtDeletedRemotely
	}

	local, err := p.work.ReadFile(rec.Path)
	if err != nil {
		return fmt.Sprintf(txtNoPreview, err)
	}
	if p.mat == nil {
		return fmt.Sprintf(txtNoPreview, "remote content unavailable")
	}
	remote, err := p.mat.Fetch(snapshot.FileEntry{Path: rec.Path, Hash: rec.RemoteHash})
	if err != nil {
		return fmt.Sprintf(txtNoPreview, err)
	}
	return renderDiff(local, remote)
}

// renderDiff shows what keeping local would change relative to remote.
func renderDiff(local, remote []byte) string {
	if !isText(local) || !isText(remote) {
		return fmt.Sprintf(txtBinaryPreview, humanize.Bytes(uint64(len(local))), humanize.Bytes(uint64(len(remote))))
	}

	truncated := false
	if len(local) > maxPreviewBytes {
		local, truncated = local[:maxPreviewBytes], true
	}
	if len(remote) > maxPreviewBytes {
		remote, truncated = remote[:maxPreviewBytes], true
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(string(remote), string(local), false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	out := dmp.DiffPrettyText(diffs)
	if truncated {
		out += "\n" + gray.Render(txtTruncated)
	}
	return out
}

func isText(b []byte) bool {
	return utf8.Valid(b) && bytes.IndexByte(b, 0) < 0
}
