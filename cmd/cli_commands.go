package cmd

// commandDocs documentation info used for the help command.
type commandDocs struct {
	name    string
	args    string
	summary string
}

var cliCommandTable = []commandDocs{
	{"new", "", "create a table with 2^5 slots"},
	{"new:", "<m>", "create a table with 2^m slots"},
	{"size", "<n>", "expect n keys in the table"},
	{"capacity", "<n>", "expect n slots"},
	{"load_factor", "<f>", "expect (occupied + tombstones) / capacity to equal f"},
	{"empty", "<bool>", "expect the table to be empty or not"},
	{"member", "<key> <bool>", "expect key to be present or not"},
	{"bin", "<i> <key>", "expect slot i to hold key"},
	{"insert", "<key>", "insert key"},
	{"insert!", "<key>", "expect inserting key to overflow"},
	{"erase", "<key> <bool>", "erase key, expecting it to have been present or not"},
	{"clear", "", "empty every slot"},
	{"cout", "", "print every slot: - empty, x tombstone, else the key"},
	{"delete", "", "release the table"},
	{"summary", "", "print memory allocated minus memory deallocated"},
	{"details", "", "print every recorded allocation"},
	{"memory", "<n>", "expect n bytes to be in use"},
	{"memory_store", "", "remember the bytes in use"},
	{"memory_change", "<n>", "warn unless the bytes in use moved by n since memory_store"},
	{"help", "", "print this list"},
	{"exit", "", "stop reading commands"},
	{"!!", "", "repeat the previous command"},
	{"!<n>", "", "repeat command n"},
	{"//", "...", "echo a comment"},
}
