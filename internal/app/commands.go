package app

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"pixivbot/internal/pixiv"
	"pixivbot/internal/transport"
	logx "pixivbot/pkg/logx"
)

// artworkLinkRe matches pasted artwork URLs in plain messages, including
// the /en/ locale prefix.
var artworkLinkRe = regexp.MustCompile(`pixiv\.net/(?:en/)?artworks/(\d+)`)

func (a *App) route(ctx context.Context, up transport.Update) {
	m := up.Message
	if m == nil {
		return
	}
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return
	}
	target := transport.ChatTarget{ChatID: m.ChatID}
	fields := strings.Fields(text)

	cmd := fields[0]
	// Group chats suffix commands with the bot name.
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i]
	}
	switch cmd {
	case "/pixiv":
		a.cmdArtwork(ctx, fields[1:], target)
	case "/pauthor":
		a.cmdAuthor(ctx, fields[1:], target)
	case "/pcheck":
		a.cmdCheck(ctx, m, target)
	case "/plast":
		a.cmdLast(ctx, fields[1:], target)
	default:
		if match := artworkLinkRe.FindStringSubmatch(text); match != nil {
			id, err := strconv.ParseInt(match[1], 10, 64)
			if err != nil {
				return
			}
			a.runArtwork(ctx, id, target)
		}
	}
}

func (a *App) cmdArtwork(ctx context.Context, args []string, target transport.ChatTarget) {
	id, ok := a.parseID(ctx, args, target, "usage: /pixiv <artwork id>")
	if !ok {
		return
	}
	a.runArtwork(ctx, id, target)
}

// runArtwork is shared by the command and the passive link match. It posts
// an interim status message and removes it once the real reply is out.
func (a *App) runArtwork(ctx context.Context, id int64, target transport.ChatTarget) {
	status, statusErr := a.adapter.SendText(ctx, target, fmt.Sprintf("Fetching artwork %d…", id))

	err := a.handler.HandleArtwork(ctx, id, false, target)

	if statusErr == nil {
		if derr := a.adapter.DeleteMessage(ctx, status); derr != nil {
			a.log.Debug("deleting status message", logx.Err(derr))
		}
	}
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		a.say(ctx, target, fmt.Sprintf("Artwork %d was not found or has been removed.", id))
	default:
		a.log.Warn("artwork request failed", logx.Int64("illust", id), logx.Err(err))
		a.say(ctx, target, "Error: "+err.Error())
	}
}

func (a *App) cmdAuthor(ctx context.Context, args []string, target transport.ChatTarget) {
	id, ok := a.parseID(ctx, args, target, "usage: /pauthor <author id>")
	if !ok {
		return
	}

	u, err := a.gallery.UserDetail(ctx, id)
	if err != nil {
		a.say(ctx, target, "Error: "+err.Error())
		return
	}
	if u == nil {
		a.say(ctx, target, fmt.Sprintf("Author %d was not found.", id))
		return
	}

	profileURL := fmt.Sprintf("https://www.pixiv.net/users/%d", u.ID)
	var b strings.Builder
	fmt.Fprintf(&b, "%s (@%s)\n", u.Name, u.Account)
	if u.TotalIllusts > 0 {
		fmt.Fprintf(&b, "Artworks: %d\n", u.TotalIllusts)
	}
	if c := strings.TrimSpace(u.Comment); c != "" {
		fmt.Fprintf(&b, "%s\n", c)
	}
	b.WriteString(profileURL)
	text := b.String()

	if a.capturer != nil {
		shot, err := a.capturer.CapturePage(ctx, profileURL, a.capCookie)
		if err != nil {
			a.log.Warn("profile capture failed", logx.Int64("author", id), logx.Err(err))
		} else if err := a.adapter.SendPhotos(ctx, target, text, [][]byte{shot}); err == nil {
			return
		} else {
			a.log.Warn("sending profile capture failed", logx.Err(err))
		}
	}
	a.say(ctx, target, text)
}

func (a *App) cmdCheck(ctx context.Context, m *transport.Message, target transport.ChatTarget) {
	if len(a.owners) > 0 {
		if _, ok := a.owners[m.FromID]; !ok {
			a.say(ctx, target, "Only bot owners can trigger a check.")
			return
		}
	}
	svc := a.watchService()
	if svc == nil {
		a.say(ctx, target, "Author watch is not enabled.")
		return
	}
	pushed, err := svc.RunCycle(ctx, true)
	if err != nil {
		a.say(ctx, target, "Error: "+err.Error())
		return
	}
	a.say(ctx, target, fmt.Sprintf("Manual check complete: %d push(es) delivered.", pushed))
}

func (a *App) cmdLast(ctx context.Context, args []string, target transport.ChatTarget) {
	id, ok := a.parseID(ctx, args, target, "usage: /plast <author id>")
	if !ok {
		return
	}

	listing, err := a.gallery.UserIllusts(ctx, id)
	if err != nil {
		a.say(ctx, target, "Error: "+err.Error())
		return
	}
	var latest *pixiv.Illust
	for i := range listing {
		if latest == nil || listing[i].ID > latest.ID {
			latest = &listing[i]
		}
	}
	if latest == nil {
		a.say(ctx, target, fmt.Sprintf("No artworks found for author %d.", id))
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Latest by %s: %s (%d)", latest.AuthorName, latest.Title, latest.ID)
	if last, ok, err := a.store.LastSeen(ctx, id); err == nil && ok {
		fmt.Fprintf(&b, "\nTracked last seen: %d", last)
	}
	a.say(ctx, target, b.String())
}

func (a *App) parseID(ctx context.Context, args []string, target transport.ChatTarget, usage string) (int64, bool) {
	if len(args) != 1 {
		a.say(ctx, target, usage)
		return 0, false
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		a.say(ctx, target, "That doesn't look like a numeric id.")
		return 0, false
	}
	return id, true
}

func (a *App) say(ctx context.Context, target transport.ChatTarget, text string) {
	if _, err := a.adapter.SendText(ctx, target, text); err != nil {
		a.log.Warn("sending reply", logx.Err(err))
	}
}
