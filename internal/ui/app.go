package ui

import (
	"context"
	"errors"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/sesmanagement/discussions/internal/chat"
	"github.com/sesmanagement/discussions/internal/logger"
	"github.com/sesmanagement/discussions/internal/models"
)

var log = logger.New("ui")

const helpText = " Enter:Send | Tab:Switch pane | /attach <path> | /detach | /search <text> | Ctrl-C:Quit "

// App is the terminal front end of a chat.Client
type App struct {
	app    *tview.Application
	client *chat.Client
	ctx    context.Context

	contactsList *tview.List
	chatView     *tview.TextView
	messageInput *tview.InputField
	statusBar    *tview.TextView

	// contact ids in list order, rebuilt on each render
	listed []string
}

// NewApp creates the widgets; call Options before chat.Open and Run after
func NewApp() *App {
	a := &App{app: tview.NewApplication()}
	a.build()
	return a
}

// Options hooks the view into the client's callbacks
func (a *App) Options(base chat.Options) chat.Options {
	base.OnChange = func() {
		a.app.QueueUpdateDraw(a.render)
	}
	base.Notify = func(n chat.Notice) {
		a.app.QueueUpdateDraw(func() { a.showNotice(n) })
	}
	return base
}

// Run shows the UI until the user quits or the connection is lost
func (a *App) Run(ctx context.Context, client *chat.Client) error {
	a.ctx = ctx
	a.client = client

	go func() {
		select {
		case <-client.Done():
			a.app.QueueUpdateDraw(a.render)
		case <-ctx.Done():
			a.app.Stop()
		}
	}()

	a.app.QueueUpdateDraw(a.render)
	return a.app.SetRoot(a.layout(), true).SetFocus(a.messageInput).Run()
}

func (a *App) build() {
	a.contactsList = tview.NewList()
	a.contactsList.SetBorder(true)
	a.contactsList.SetBorderColor(ColorBorder)
	a.contactsList.SetBackgroundColor(ColorBg)
	a.contactsList.SetTitle(" Chats ")
	a.contactsList.SetTitleColor(ColorTitle)
	a.contactsList.SetMainTextColor(ColorFg)
	a.contactsList.SetSecondaryTextColor(ColorMuted)
	a.contactsList.SetSelectedBackgroundColor(ColorHighlight)
	a.contactsList.SetSelectedFunc(func(index int, _, _ string, _ rune) {
		a.selectIndex(index)
	})

	a.chatView = tview.NewTextView()
	a.chatView.SetBorder(true)
	a.chatView.SetBorderColor(ColorBorder)
	a.chatView.SetBackgroundColor(ColorBg)
	a.chatView.SetTitleColor(ColorTitle)
	a.chatView.SetTextColor(ColorFg)
	a.chatView.SetDynamicColors(true)
	a.chatView.SetScrollable(true)
	a.chatView.SetWordWrap(true)

	a.messageInput = tview.NewInputField()
	a.messageInput.SetLabel("> ")
	a.messageInput.SetFieldWidth(0)
	a.messageInput.SetBackgroundColor(ColorBg)
	a.messageInput.SetFieldBackgroundColor(ColorInputBg)
	a.messageInput.SetFieldTextColor(ColorFg)
	a.messageInput.SetLabelColor(ColorHighlight)
	a.messageInput.SetBorder(true)
	a.messageInput.SetBorderColor(ColorBorder)
	a.messageInput.SetTitle(" Message ")
	a.messageInput.SetTitleColor(ColorTitle)
	a.messageInput.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter {
			a.submit(a.messageInput.GetText())
		}
	})

	a.statusBar = tview.NewTextView()
	a.statusBar.SetBackgroundColor(ColorStatusBg)
	a.statusBar.SetTextColor(ColorTitle)
	a.statusBar.SetDynamicColors(true)
	a.statusBar.SetText(helpText)
}

func (a *App) layout() tview.Primitive {
	right := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.chatView, 0, 1, false).
		AddItem(a.messageInput, 3, 0, true)

	body := tview.NewFlex().
		AddItem(a.contactsList, 32, 0, false).
		AddItem(right, 0, 1, true)

	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(body, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	root.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyTab {
			if a.contactsList.HasFocus() {
				a.app.SetFocus(a.messageInput)
			} else {
				a.app.SetFocus(a.contactsList)
			}
			return nil
		}
		return event
	})
	return root
}

// render redraws everything from a fresh snapshot; runs on the UI goroutine
func (a *App) render() {
	if a.client == nil {
		return
	}
	view := a.client.Snapshot()

	current := a.contactsList.GetCurrentItem()
	a.contactsList.Clear()
	a.listed = a.listed[:0]
	for _, c := range view.Contacts {
		a.contactsList.AddItem(contactLabel(c, view.Online[c.ID]), contactSecondary(c), 0, nil)
		a.listed = append(a.listed, c.ID)
	}
	if current >= 0 && current < len(a.listed) {
		a.contactsList.SetCurrentItem(current)
	}
	title := " Chats "
	if view.Query != "" {
		title = " Chats: " + tview.Escape(view.Query) + " "
	}
	if !view.RosterLoaded {
		title += "(loading) "
	}
	if !view.Connected {
		title += "(offline) "
	}
	a.contactsList.SetTitle(title)

	a.chatView.SetTitle(chatTitle(view))
	lines := make([]string, 0, len(view.Messages))
	for _, m := range view.Messages {
		lines = append(lines, formatMessage(m, view.LocalUserID))
	}
	a.chatView.SetText(strings.Join(lines, "\n"))
	a.chatView.ScrollToEnd()

	a.messageInput.SetLabel(draftLabel(view.Draft))
}

func (a *App) showNotice(n chat.Notice) {
	text := " " + tview.Escape(n.Text)
	if n.Level == chat.NoticeError {
		text = " [red]" + tview.Escape(n.Text) + "[-]"
	}
	a.statusBar.SetText(text + " |" + helpText)
}

func (a *App) selectIndex(index int) {
	if index < 0 || index >= len(a.listed) {
		return
	}
	var contact models.Contact
	found := false
	for _, c := range a.client.Snapshot().Contacts {
		if c.ID == a.listed[index] {
			contact, found = c, true
			break
		}
	}
	if !found {
		return
	}
	a.app.SetFocus(a.messageInput)

	go func() {
		if err := a.client.SelectContact(a.ctx, contact); err != nil && !errors.Is(err, chat.ErrSuperseded) {
			log.Warn("Select %s: %v", contact.ID, err)
		}
	}()
}

// submit runs on the UI goroutine; client calls go to background goroutines
// because they redraw through QueueUpdateDraw
func (a *App) submit(text string) {
	if name, arg, ok := parseCommand(text); ok {
		a.messageInput.SetText("")
		a.command(name, arg)
		return
	}

	a.messageInput.SetText("")
	go func() {
		// empty input resends the kept draft after a failure
		if strings.TrimSpace(text) != "" && a.client.Snapshot().State != chat.Sending {
			a.client.SetDraftText(text)
		}
		if _, err := a.client.SendDraft(a.ctx); err != nil {
			a.app.QueueUpdateDraw(func() {
				a.messageInput.SetText(a.client.Draft().Text)
				switch {
				case errors.Is(err, chat.ErrEmptyMessage), errors.Is(err, chat.ErrNoActiveContact), errors.Is(err, chat.ErrNotReady):
					a.showNotice(chat.Notice{Level: chat.NoticeInfo, Text: err.Error()})
				}
			})
		}
	}()
}

func (a *App) command(name, arg string) {
	switch name {
	case "attach":
		file, err := openAttachment(arg)
		if err != nil {
			a.showNotice(chat.Notice{Level: chat.NoticeError, Text: "Cannot attach: " + err.Error()})
			return
		}
		go a.client.AttachMedia(file)
	case "detach":
		go a.client.ClearMedia()
	case "search":
		go a.client.SetQuery(arg)
	case "refresh":
		go a.client.RefreshRoster(a.ctx)
	case "quit":
		a.app.Stop()
	default:
		a.showNotice(chat.Notice{Level: chat.NoticeInfo, Text: "Unknown command /" + name})
	}
}
