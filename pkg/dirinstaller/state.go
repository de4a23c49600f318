package dirinstaller

import "github.com/spread-install/spread/pkg/hash"

// hashPath is one entry of the preHash/postHash/preBlinds/postBlinds
// multimaps: a directory or archive hash declared at a given path prefix.
type hashPath struct {
	Hash hash.Hash
	Path string
}

// addEntry is one entry of the add list built by sortAddDel: a hash that
// must end up written at fullPath.
type addEntry struct {
	Hash     hash.Hash
	FullPath string
}

// delEntry is one entry of the del list built by sortAddDel: a hash
// expected to currently exist at fullPath and no longer wanted.
type delEntry struct {
	Hash     hash.Hash
	FullPath string
}

// move is a planned rename, either an add/del pair found to name the same
// content (findMoves) or a fetched temp file relocated to its final
// destination (the transactional fetch phase). Hash is recorded so the
// final cache commit can batch every successful move's (path, hash) pair
// in one CacheIndex.AddMany call without re-deriving it from the (by then
// consumed) add list.
type move struct {
	From string
	To   string
	Hash hash.Hash
}
