package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"go.uber.org/zap"

	"github.com/chet-im/chet/internal/archive"
	"github.com/chet-im/chet/internal/bus"
	"github.com/chet-im/chet/internal/cache"
	"github.com/chet-im/chet/internal/engine"
	"github.com/chet-im/chet/internal/scroll"
	"github.com/chet-im/chet/internal/status"
	"github.com/chet-im/chet/internal/tui/keys"
	"github.com/chet-im/chet/internal/tui/views"
	"github.com/chet-im/chet/internal/wire"
)

const flashDuration = 5 * time.Second

// App is the main TUI application shell.
type App struct {
	app      *tview.Application
	pages    *tview.Pages
	root     *tview.Flex
	registry *keys.Registry
	flash    Flash

	engine  *engine.Engine
	cache   *cache.Cache
	ctrl    *scroll.Controller
	store   *archive.DB
	machine *status.Machine
	bus     *bus.Bus
	logger  *zap.Logger

	statusBar *views.StatusBar
	chatList  *views.ChatList
	msgView   *views.MessageView
	composer  *views.Composer
	searchV   *views.SearchView
	prompt    *views.Prompt

	// activeChat is only touched from the tview event loop.
	activeChat string

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(e *engine.Engine, c *cache.Cache, ctrl *scroll.Controller, store *archive.DB, m *status.Machine, b *bus.Bus, logger *zap.Logger, sessionName string) *App {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		registry:  keys.NewRegistry(),
		engine:    e,
		cache:     c,
		ctrl:      ctrl,
		store:     store,
		machine:   m,
		bus:       b,
		logger:    logger,
		statusBar: views.NewStatusBar(),
		chatList:  views.NewChatList(),
		msgView:   views.NewMessageView(),
		composer:  views.NewComposer(),
		searchV:   views.NewSearchView(),
		prompt:    views.NewPrompt(),
		ctx:       ctx,
		cancel:    cancel,
	}

	a.statusBar.SetSession(sessionName)
	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal("quit", &keys.Action{
		Rune: 'q', Key: tcell.KeyRune,
		Description: "q:quit",
		Handler:     func() { a.app.Stop() },
	})
	a.registry.AddGlobal("search", &keys.Action{
		Rune: 's', Key: tcell.KeyRune,
		Description: "s:search",
		Handler:     func() { a.showSearch() },
	})
	a.registry.AddGlobal("command", &keys.Action{
		Rune: ':', Key: tcell.KeyRune,
		Description: ":,:new,:join,:name",
		Handler:     func() { a.showPrompt() },
	})
	a.registry.AddGlobal("help", &keys.Action{
		Rune: '?', Key: tcell.KeyRune,
		Description: "?:help",
		Handler:     func() { a.showHelp() },
	})
	a.registry.AddView("chat", "compose", &keys.Action{
		Rune: 'i', Key: tcell.KeyRune,
		Description: "i:compose",
		Handler:     func() { a.app.SetFocus(a.composer.InputField) },
	})
}

func (a *App) setupCallbacks() {
	a.chatList.SetSelectedFunc(func(row, col int) {
		if id := a.chatList.SelectedChat(); id != "" {
			a.openChat(id)
		}
	})

	a.composer.SetOnSend(func(text string) {
		chatID := a.activeChat
		if chatID == "" {
			return
		}
		go func() {
			if _, err := a.engine.SendMessage(a.ctx, chatID, text); err != nil {
				a.flash.Set("Send failed: "+err.Error(), flashDuration)
			} else {
				a.ctrl.NoteSent()
			}
			a.refresh()
		}()
	})

	a.searchV.SetOnQuery(func(query string) {
		go func() {
			results, err := a.store.Search(query, 50)
			if err != nil {
				a.flash.Set("Search failed: "+err.Error(), flashDuration)
				a.refresh()
				return
			}
			a.app.QueueUpdateDraw(func() {
				a.searchV.Update(results)
				a.app.SetFocus(a.searchV.Results())
			})
		}()
	})

	a.searchV.Results().SetSelectedFunc(func(row, col int) {
		if id, ok := a.searchV.SelectedResult(); ok {
			if _, loaded := a.cache.Chat(id); loaded {
				a.openChat(id)
			} else {
				a.flash.Set("Chat no longer in roster", flashDuration)
			}
		}
	})

	a.prompt.SetOnSubmit(func(text string) {
		a.hidePrompt()
		a.runCommand(ParseCommand(text))
	})
	a.prompt.SetOnCancel(func() { a.hidePrompt() })
}

func (a *App) setupLayout() {
	chatFlex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.msgView, 0, 1, false).
		AddItem(a.composer, 1, 0, false)

	a.pages.AddPage("chats", a.chatList, true, true)
	a.pages.AddPage("chat", chatFlex, true, false)
	a.pages.AddPage("search", a.searchV, true, false)

	a.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(a.root, true)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		currentPage, _ := a.pages.GetFrontPage()

		if event.Key() == tcell.KeyEscape {
			switch currentPage {
			case "chat", "search", "help":
				a.pages.SwitchToPage("chats")
				a.app.SetFocus(a.chatList)
				return nil
			}
		}

		// Let text input widgets handle all keys normally.
		focused := a.app.GetFocus()
		if _, ok := focused.(*tview.InputField); ok {
			return event
		}

		if a.registry.HandleEvent(currentPage, event) {
			return nil
		}

		// Scroll keys fall through to the message view. Re-evaluate
		// afterwards so nearing the top pulls older history and
		// reaching the bottom moves the read marker.
		if currentPage == "chat" && isScrollKey(event) {
			go a.evaluateScroll()
		}

		return event
	})
}

func isScrollKey(event *tcell.EventKey) bool {
	switch event.Key() {
	case tcell.KeyUp, tcell.KeyDown, tcell.KeyPgUp, tcell.KeyPgDn, tcell.KeyHome, tcell.KeyEnd:
		return true
	case tcell.KeyRune:
		return event.Rune() == 'k' || event.Rune() == 'j' || event.Rune() == 'g' || event.Rune() == 'G'
	}
	return false
}

func (a *App) openChat(id string) {
	a.activeChat = id
	a.ctrl.SetChat(id)

	chat, _ := a.cache.Chat(id)
	a.msgView.Update(chat, a.selfID())
	a.pages.SwitchToPage("chat")
	a.app.SetFocus(a.msgView)

	go a.evaluateScroll()
}

func (a *App) showSearch() {
	a.pages.SwitchToPage("search")
	a.app.SetFocus(a.searchV.Input())
}

func (a *App) showPrompt() {
	a.root.ResizeItem(a.prompt, 3, 0)
	a.app.SetFocus(a.prompt.InputField)
}

func (a *App) hidePrompt() {
	a.root.ResizeItem(a.prompt, 0, 0)
	page, _ := a.pages.GetFrontPage()
	if page == "chat" {
		a.app.SetFocus(a.msgView)
	} else {
		a.app.SetFocus(a.chatList)
	}
}

func (a *App) showHelp() {
	page, _ := a.pages.GetFrontPage()
	hints := a.registry.Hints(page)

	tv := tview.NewTextView().SetDynamicColors(true)
	tv.SetBorder(true).SetTitle(" Help ")
	fmt.Fprintln(tv, " Enter:open  Esc:back  i:compose")
	fmt.Fprintln(tv, " :new <name>   create a chat")
	fmt.Fprintln(tv, " :join <code>  join a chat")
	fmt.Fprintln(tv, " :name <name>  set display name")
	fmt.Fprintln(tv, "")
	fmt.Fprintln(tv, " "+strings.Join(hints, "  "))

	a.pages.AddPage("help", tv, true, true)
}

func (a *App) runCommand(cmd Command) {
	switch cmd.Name {
	case "quit", "q":
		a.app.Stop()
	case "new":
		a.withFlash("create chat", func() error {
			_, err := a.engine.CreateChat(a.ctx, cmd.Args)
			return err
		})
	case "join":
		a.withFlash("join chat", func() error {
			_, err := a.engine.JoinChat(a.ctx, cmd.Args)
			return err
		})
	case "name":
		name := cmd.Args
		a.withFlash("update profile", func() error {
			_, err := a.engine.UpdateProfile(a.ctx, wire.ProfileUpdateRequest{DisplayName: &name})
			return err
		})
	default:
		a.flash.Set("Unknown command: "+cmd.Name, flashDuration)
	}
}

// withFlash runs op in the background and surfaces its error, if any,
// in the status bar.
func (a *App) withFlash(what string, op func() error) {
	go func() {
		if err := op(); err != nil {
			a.flash.Set(what+" failed: "+err.Error(), flashDuration)
		}
		a.refresh()
	}()
}

func (a *App) selfID() string {
	if self := a.cache.Self(); self != nil {
		return self.ID
	}
	return ""
}

// refresh re-renders the visible views from the cache. Safe to call
// from any goroutine except the tview event loop.
func (a *App) refresh() {
	a.app.QueueUpdateDraw(func() {
		a.chatList.Update(a.cache.Snapshot(), a.cache.Self())

		if a.activeChat != "" {
			chat, ok := a.cache.Chat(a.activeChat)
			if ok {
				a.msgView.Update(chat, a.selfID())
			}
		}

		a.statusBar.SetState(a.machine.Current(), a.machine.Reason())
		a.statusBar.SetFlash(a.flash.Get())
	})

	go a.evaluateScroll()
}

// evaluateScroll feeds the current viewport to the pagination
// controller and applies whatever it decides. Runs off the event loop;
// the fetch inside Evaluate can block on the network.
func (a *App) evaluateScroll() {
	var vp scroll.Viewport
	a.app.QueueUpdate(func() {
		if page, _ := a.pages.GetFrontPage(); page != "chat" {
			vp.ScrollHeight = -1
			return
		}
		vp = a.msgView.Viewport()
	})
	if vp.ScrollHeight < 0 {
		return
	}

	plan := a.ctrl.Evaluate(a.ctx, vp)
	if plan.Kind == scroll.PlanNone {
		return
	}
	a.app.QueueUpdateDraw(func() {
		if a.activeChat == "" {
			return
		}
		if chat, ok := a.cache.Chat(a.activeChat); ok {
			a.msgView.Update(chat, a.selfID())
		}
		a.msgView.Apply(plan)
	})
}

// eventLoop applies bus events to the views until the app shuts down.
func (a *App) eventLoop() {
	events, unsubscribe := a.bus.Subscribe("", 64)
	defer unsubscribe()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case evt := <-events:
			switch evt.Kind {
			case bus.KindCacheChats:
				// Full roster replacement. History exhaustion markers
				// no longer apply to the fresh windows.
				a.ctrl.Reset()
			case bus.KindCallSignal:
				a.flash.Set("Incoming call signal", flashDuration)
			}
			a.refresh()
		case <-ticker.C:
			// Keep the clock and flash expiry moving.
			a.app.QueueUpdateDraw(func() {
				a.statusBar.SetFlash(a.flash.Get())
				a.statusBar.SetState(a.machine.Current(), a.machine.Reason())
			})
		case <-a.ctx.Done():
			return
		}
	}
}

// Run starts the TUI application and blocks until it exits.
func (a *App) Run() error {
	go a.eventLoop()
	return a.app.Run()
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
