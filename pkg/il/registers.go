package il

// Register is one of the 16 architectural general-purpose registers.
// ArgumentOrder is the register's position in the calling convention
// (0..5), or -1 if it carries no argument. rsp is reserved and never
// participates in allocation.
type Register struct {
	Name          string
	CalleeSaved   bool
	ArgumentOrder int
}

func (r *Register) NodeName() string { return r.Name }
func (r *Register) implNode()        {}

type registerDef struct {
	name        string
	calleeSaved bool
	argOrder    int
}

var registerDefs = []registerDef{
	{"rax", false, -1},
	{"rdi", false, 0},
	{"rsi", false, 1},
	{"rdx", false, 2},
	{"rcx", false, 3},
	{"r8", false, 4},
	{"r9", false, 5},
	{"r10", false, -1},
	{"r11", false, -1},
	{"r12", true, -1},
	{"r13", true, -1},
	{"r14", true, -1},
	{"r15", true, -1},
	{"rbx", true, -1},
	{"rbp", true, -1},
	{"rsp", true, -1},
}

// AllocOrder is the color palette: the 15 allocatable registers in the
// fixed order that maps color index to register.
var AllocOrder = []string{
	"rax", "rdi", "rsi", "rdx", "rcx",
	"r8", "r9", "r10", "r11", "r12",
	"r13", "r14", "r15", "rbx", "rbp",
}

// CallerSaved lists the registers clobbered by a call.
var CallerSaved = []string{
	"rax", "rdi", "rsi", "rdx", "rcx", "r8", "r9", "r10", "r11",
}

// ReturnLive lists the registers read by a return: the return value
// plus every callee-saved register other than rsp.
var ReturnLive = []string{
	"rax", "rbx", "rbp", "r12", "r13", "r14", "r15",
}

// ArgumentRegisters lists the argument-passing registers in calling
// convention order.
var ArgumentRegisters = []string{
	"rdi", "rsi", "rdx", "rcx", "r8", "r9",
}

// IsRegisterName reports whether name denotes an architectural GPR.
func IsRegisterName(name string) bool {
	for _, def := range registerDefs {
		if def.name == name {
			return true
		}
	}
	return false
}
