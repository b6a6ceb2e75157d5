package app

// Code is the application/EXC exit-code vocabulary.
type Code int

const (
	Success Code = iota
	Disabled
	Finished
	WMNotFound
	WMRejected
	WMEnabChanged
	WMEnabUnchanged
	StatusNotExp
	Abort
	TGSemError
	TGFileError
)

var codeNames = map[Code]string{
	Success:         "SUCCESS",
	Disabled:        "DISABLED",
	Finished:        "FINISHED",
	WMNotFound:      "WM_NOT_FOUND",
	WMRejected:      "WM_REJECTED",
	WMEnabChanged:   "WM_ENAB_CHANGED",
	WMEnabUnchanged: "WM_ENAB_UNCHANGED",
	StatusNotExp:    "STATUS_NOT_EXP",
	Abort:           "ABORT",
	TGSemError:      "TG_SEM_ERROR",
	TGFileError:     "TG_FILE_ERROR",
}

func (c Code) String() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return "UNKNOWN"
}

func (c Code) Error() string { return c.String() }

// Ok reports whether c represents a successful outcome.
func (c Code) Ok() bool { return c == Success || c == WMEnabChanged || c == WMEnabUnchanged }
