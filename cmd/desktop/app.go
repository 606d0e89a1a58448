package main

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"

	"github.com/lyallcooper/barscan/internal/handlers"
	"github.com/lyallcooper/barscan/internal/services"
)

// App struct holds the Wails application context and provides
// methods that can be called from the frontend.
type App struct {
	ctx  context.Context
	ctrl *services.Controller
}

// NewApp creates a new App instance.
func NewApp(ctrl *services.Controller) *App {
	return &App{ctrl: ctrl}
}

// startup is called when the app starts.
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
}

// OpenURL opens a scanned http(s) link in the default browser. The page
// calls it for result links, which the webview cannot open itself.
func (a *App) OpenURL(raw string) error {
	if !handlers.IsWebURL(raw) {
		return fmt.Errorf("not a web link: %q", raw)
	}
	cmd := openCommand(raw)
	if err := cmd.Start(); err != nil {
		return err
	}
	go cmd.Wait()
	return nil
}

func openCommand(link string) *exec.Cmd {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", link)
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", link)
	default: // Linux
		return exec.Command("xdg-open", link)
	}
}

// CopyResult copies a scan result to the clipboard and waits for the
// outcome. The page's Copy buttons call it in place of the HTTP API.
func (a *App) CopyResult(id string) error {
	done, err := a.ctrl.CopyResult(id)
	if err != nil {
		return err
	}
	return <-done
}
