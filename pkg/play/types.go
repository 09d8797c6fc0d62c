package play

// Playbook is an ordered list of plays, static once loaded.
type Playbook struct {
	Plays   []Play
	BaseDir string
}

// Play binds an ordered task list to a host selector plus play-level
// settings.
type Play struct {
	Name        string
	Hosts       string
	Become      bool
	BecomeUser  string
	Serial      int
	GatherFacts *bool // nil means the configured default
	Vars        map[string]any
	VarsFiles   []string
	Tasks       []Task
	Handlers    []Task
}

// Task is one declarative unit of work: a module name, its parameters and
// the optional guard/loop/elevation/bookkeeping keys.
type Task struct {
	Name         string
	Module       string
	Args         map[string]any
	When         string
	Loop         any // list literal, or a string naming/templating a list var
	Become       *bool
	BecomeUser   string
	Register     string
	Notify       []string
	Tags         []string
	IgnoreErrors bool
}
