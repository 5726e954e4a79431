package render

import "finchat/internal/conversation"

// Surface is anything that can display a View.
type Surface interface {
	Draw(View)
	ScrollToLatest()
}

// Bind draws the current state on s and redraws it after every change,
// keeping the newest message in view. Calling unbind stops the updates.
func Bind(state *conversation.State, r *Renderer, s Surface) (unbind func()) {
	draw := func(snap conversation.Snapshot) {
		s.Draw(r.Render(snap))
		s.ScrollToLatest()
	}
	draw(state.Snapshot())
	return state.Observe(draw)
}
