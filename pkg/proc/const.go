package proc

// from: man proc
var threadStateStrings = map[string]string{
	"R": "Running",
	"S": "Sleeping",
	"D": "Disk sleep",
	"Z": "Zombie",
	"T": "Stopped",
	"t": "Tracing stop",
	"w": "Paging",
	"x": "Dead",
	"X": "Dead",
	"K": "Wakekill",
	"W": "Waking",
	"P": "Parked",
}

const pageSize = 4096
