package adminapi

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bbque-go/bbqued/pkg/app"
	"github.com/bbque-go/bbqued/pkg/rtid"
)

type appView struct {
	UID        string  `json:"uid"`
	PID        int32   `json:"pid"`
	ExcID      uint8   `json:"exc_id"`
	Priority   int     `json:"priority"`
	State      string  `json:"state"`
	SyncState  string  `json:"sync_state,omitempty"`
	CurrentAWM *uint8  `json:"current_awm,omitempty"`
	NextAWM    *uint8  `json:"next_awm,omitempty"`
	CurrInv    bool    `json:"curr_inv"`
}

func toAppView(a *app.App) appView {
	uid := a.UID()
	v := appView{
		UID:      uid.String(),
		PID:      uid.PID(),
		ExcID:    uid.ExcID(),
		Priority: a.Priority(),
		State:    a.State().String(),
		CurrInv:  a.CurrInv(),
	}
	if a.State() == app.Sync {
		v.SyncState = a.SyncState().String()
	}
	if cur := a.CurrentAWM(); cur != nil {
		id := cur.ID
		v.CurrentAWM = &id
	}
	if next := a.NextAWM(); next != nil {
		id := next.ID
		v.NextAWM = &id
	}
	return v
}

// listApps returns every known EXC across every lifecycle state.
func (s *Server) listApps(c *gin.Context) {
	var out []appView
	for _, state := range []app.State{app.Disabled, app.Ready, app.Sync, app.Running, app.Finished} {
		for _, a := range s.mgr.ByState(state) {
			out = append(out, toAppView(a))
		}
	}
	c.JSON(http.StatusOK, gin.H{"apps": out})
}

// getApp returns a single EXC by its "pid:excid" UID string.
func (s *Server) getApp(c *gin.Context) {
	uid, ok := parseUID(c.Param("uid"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "uid must be of the form pid:exc_id"})
		return
	}
	a, ok := s.mgr.ByUID(uid)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such application"})
		return
	}
	c.JSON(http.StatusOK, toAppView(a))
}

type resourceView struct {
	Path      string `json:"path"`
	Total     uint64 `json:"total"`
	Used      uint64 `json:"used"`
	Available uint64 `json:"available"`
	Online    bool   `json:"online"`
}

// listResources returns every resource descriptor in the platform's tree,
// with its system-view usage.
func (s *Server) listResources(c *gin.Context) {
	all := s.tree.All()
	out := make([]resourceView, 0, len(all))
	for _, r := range all {
		used := r.Used(rtid.SystemView)
		out = append(out, resourceView{
			Path:      r.Path().String(),
			Total:     r.Total(),
			Used:      used,
			Available: r.Total() - used,
			Online:    r.Online(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"resources": out})
}

// listViews returns every currently open accounter view token.
func (s *Server) listViews(c *gin.Context) {
	toks := s.acc.Views()
	out := make([]uint32, 0, len(toks))
	for _, t := range toks {
		out = append(out, uint32(t))
	}
	c.JSON(http.StatusOK, gin.H{"views": out})
}

type triggerView struct {
	Name   string  `json:"name"`
	Kind   string  `json:"kind"`
	High   uint32  `json:"high"`
	Low    uint32  `json:"low"`
	Margin float64 `json:"margin"`
	Armed  bool    `json:"armed"`
}

// listTriggers returns every registered trigger and its current bounds.
func (s *Server) listTriggers(c *gin.Context) {
	named := s.triggers.List()
	out := make([]triggerView, 0, len(named))
	for _, n := range named {
		high, low, margin := n.Bounds()
		out = append(out, triggerView{
			Name: n.Name, Kind: n.Kind().String(),
			High: high, Low: low, Margin: margin, Armed: n.Armed(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"triggers": out})
}

func parseUID(s string) (rtid.AppUID, bool) {
	var pid int32
	var exc uint8
	n, err := fmt.Sscanf(s, "%d:%d", &pid, &exc)
	if err != nil || n != 2 {
		return 0, false
	}
	return rtid.MakeAppUID(pid, exc), true
}
