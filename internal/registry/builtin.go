package registry

// Objects is the stream type of the structured record protocol spoken by
// get, grep, sed, ls and to.
var Objects = Typed("objects")

// RegisterDefaults adds the signatures of the structured utilities that
// ship alongside the shell.
func RegisterDefaults(r *Registry) {
	defaults := map[string]Signature{
		"get":  {Input: Objects, Output: Objects},
		"grep": {Input: Objects, Output: Objects},
		"sed":  {Input: Objects, Output: Objects},
		"ls":   {Input: None, Output: Objects},
		"to":   {Input: Objects, Output: Opaque},
		"cd":   {Input: None, Output: None},
	}
	for name, sig := range defaults {
		r.Register(name, sig, OriginBuiltin)
	}
}
