// Package btrfsfmt is a worked re-expression of a real, nontrivial wire
// format (BTRFS b-tree leaves and their item payloads) as declarative
// nstruct type descriptors, in place of the hand-rolled
// Parse(*ParseBuffer)-per-struct code it is modeled on. It exercises
// struct embedding (Header promoted into Leaf, Key promoted into Item),
// named nested composites (Key as DirItem's location, InodeItemBare as
// RootItem's inode), classifier-driven polymorphism (Item's
// payload dispatches on its key type byte, exactly like the original
// switch in Item.ParseData), Darray (item and name/data byte lists sized
// by a sibling count field), and Optional (RootItem's post-generation-v2
// fields, gated on a generation-equality check lifted directly from the
// original's "if i.Generation == i.GenerationV2" guard).
//
// One deliberate simplification versus the original: a leaf's item
// payloads are declared inline, immediately following each item's
// header, rather than at the leaf-relative byte offset the on-disk
// format actually stores them at (items grow from the front of the leaf,
// payloads from the back). Reproducing that exactly requires an
// absolute-offset reparse nstruct's sequential, windowed parse model
// does not support; see DESIGN.md.
package btrfsfmt

import "github.com/blichmann/nstruct/nstruct"

// Magic is the BTRFS superblock magic number, "_BHRfS_M" read
// little-endian.
const Magic = 0x4D5F53665248425F

// DefaultBlockSize is the typical BTRFS node/leaf size.
const DefaultBlockSize = 1 << 12

// CSumSize is the width, in bytes, of a header checksum.
const CSumSize = 32

// Key types nstruct's classifier dispatches Item payloads on. Every key
// listed except ExtentDataKey has a payload type below; an Item whose
// type has no payload type parses as a plain Item with no payload
// fields, mirroring the original's "default: return" case.
const (
	InodeItemKey      = 1
	InodeRefKey       = 12
	XAttrItemKey      = 24
	DirItemKey        = 84
	DirIndexKey       = 96
	ExtentDataKey     = 108
	ExtentCSumKey     = 128
	RootItemKey       = 132
	RootRefKey        = 156
	ExtentItemKey     = 168
	BlockGroupItemKey = 192
)

// uuidTD stands in for the teacher's blichmann.eu/code/btrfscue/uuid
// package, which is not present anywhere in the retrieval pack: a UUID
// is simply 16 opaque bytes on the wire, so a plain fixed-size byte
// array says everything the original's named UUID type said for parsing
// purposes.
func uuidTD() nstruct.TD { return nstruct.Array(nstruct.Uint8(), 16) }

// KeyTD is the 17-byte (object_id, type, offset) triple that addresses
// every item in every btree.
var KeyTD = nstruct.MustStruct("Key", []nstruct.FieldEntry{
	nstruct.Field(nstruct.Uint64LE(), "object_id"),
	nstruct.Field(nstruct.Uint8(), "type"),
	nstruct.Field(nstruct.Uint64LE(), "offset"),
})

// HeaderTD is the common b-tree node/leaf header.
var HeaderTD = nstruct.MustStruct("Header", []nstruct.FieldEntry{
	nstruct.Field(nstruct.Array(nstruct.Uint8(), CSumSize), "csum"),
	nstruct.Field(uuidTD(), "fsid"),
	nstruct.Field(nstruct.Uint64LE(), "byte_nr"),
	nstruct.Field(nstruct.Uint64LE(), "flags"),
	nstruct.Field(uuidTD(), "chunk_tree_uuid"),
	nstruct.Field(nstruct.Uint64LE(), "generation"),
	nstruct.Field(nstruct.Uint64LE(), "owner"),
	nstruct.Field(nstruct.Uint32LE(), "nr_items"),
	nstruct.Field(nstruct.Uint8(), "level"),
})

// ItemTD is a leaf item's key and payload-location header. Its effective
// (derived) type, chosen by the Type key byte, additionally carries the
// payload fields declared below.
var ItemTD = nstruct.MustStruct("Item", []nstruct.FieldEntry{
	nstruct.Embed(KeyTD),
	nstruct.Field(nstruct.Uint32LE(), "data_offset"),
	nstruct.Field(nstruct.Uint32LE(), "data_size"),
}, nstruct.WithClassifier(func(v *nstruct.Value) (any, error) {
	return v.Int("type"), nil
}))

// inodeFields is shared between InodeItemTD (a dispatch target under
// ItemTD) and inodeBareTD (headerless, RootItemTD's named "inode" field)
// — the same layout of 20 named fields plus a reserved pad that the
// original's InodeItem.Parse reads either way.
var inodeFields = []nstruct.FieldEntry{
	nstruct.Field(nstruct.Uint64LE(), "generation"),
	nstruct.Field(nstruct.Uint64LE(), "transid"),
	nstruct.Field(nstruct.Uint64LE(), "size"),
	nstruct.Field(nstruct.Uint64LE(), "nbytes"),
	nstruct.Field(nstruct.Uint64LE(), "block_group"),
	nstruct.Field(nstruct.Uint32LE(), "nlink"),
	nstruct.Field(nstruct.Uint32LE(), "uid"),
	nstruct.Field(nstruct.Uint32LE(), "gid"),
	nstruct.Field(nstruct.Uint32LE(), "mode"),
	nstruct.Field(nstruct.Uint64LE(), "rdev"),
	nstruct.Field(nstruct.Uint64LE(), "flags"),
	nstruct.Field(nstruct.Uint64LE(), "sequence"),
	nstruct.Pad(nstruct.Array(nstruct.Uint64LE(), 4)),
	nstruct.Field(nstruct.Uint64LE(), "atime_sec"),
	nstruct.Field(nstruct.Uint32LE(), "atime_nsec"),
	nstruct.Field(nstruct.Uint64LE(), "ctime_sec"),
	nstruct.Field(nstruct.Uint32LE(), "ctime_nsec"),
	nstruct.Field(nstruct.Uint64LE(), "mtime_sec"),
	nstruct.Field(nstruct.Uint32LE(), "mtime_nsec"),
	nstruct.Field(nstruct.Uint64LE(), "otime_sec"),
	nstruct.Field(nstruct.Uint32LE(), "otime_nsec"),
}

var inodeBareTD = nstruct.MustStruct("InodeItemBare", inodeFields)

// InodeItemTD is an Item payload: file metadata equivalent to stat(2).
var InodeItemTD = nstruct.MustStruct("InodeItem", inodeFields,
	nstruct.WithBase(ItemTD, nil, int64(InodeItemKey)))

// InodeRefItemTD is an Item payload mapping a directory entry back to
// its containing inode.
var InodeRefItemTD = nstruct.MustStruct("InodeRefItem", []nstruct.FieldEntry{
	nstruct.Field(nstruct.Uint64LE(), "index"),
	nstruct.Field(nstruct.Uint16LE(), "name_len"),
	nstruct.Darray(nstruct.Uint8(), "name", func(v *nstruct.Value) (int, error) {
		return int(v.Uint("name_len")), nil
	}),
}, nstruct.WithBase(ItemTD, nil, int64(InodeRefKey)))

// DirItemTD is an Item payload: one name -> inode pointer entry in a
// directory (also used, with the same layout, for extended attributes
// and the secondary name-hash index).
var DirItemTD = nstruct.MustStruct("DirItem", []nstruct.FieldEntry{
	nstruct.Field(KeyTD, "location"),
	nstruct.Field(nstruct.Uint64LE(), "trans_id"),
	nstruct.Field(nstruct.Uint16LE(), "data_len"),
	nstruct.Field(nstruct.Uint16LE(), "name_len"),
	nstruct.Field(nstruct.Uint8(), "dir_type"),
	nstruct.Darray(nstruct.Uint8(), "name", func(v *nstruct.Value) (int, error) {
		return int(v.Uint("name_len")), nil
	}),
	nstruct.Darray(nstruct.Uint8(), "data", func(v *nstruct.Value) (int, error) {
		return int(v.Uint("data_len")), nil
	}),
}, nstruct.WithBase(ItemTD, nil, int64(XAttrItemKey), int64(DirItemKey), int64(DirIndexKey)))

// BlockGroupItemTD is an Item payload describing one block group's
// allocation state.
var BlockGroupItemTD = nstruct.MustStruct("BlockGroupItem", []nstruct.FieldEntry{
	nstruct.Field(nstruct.Uint64LE(), "used"),
	nstruct.Field(nstruct.Uint64LE(), "chunk_object_id"),
	nstruct.Field(nstruct.Uint64LE(), "flags"),
}, nstruct.WithBase(ItemTD, nil, int64(BlockGroupItemKey)))

// ExtentItemTD is an Item payload: reference count and flags for one
// extent-tree entry.
var ExtentItemTD = nstruct.MustStruct("ExtentItem", []nstruct.FieldEntry{
	nstruct.Field(nstruct.Uint64LE(), "refs"),
	nstruct.Field(nstruct.Uint64LE(), "generation"),
	nstruct.Field(nstruct.Uint64LE(), "flags"),
}, nstruct.WithBase(ItemTD, nil, int64(ExtentItemKey)))

// CSumItemTD is an Item payload holding data checksums. The original
// only ever reads the first byte as a placeholder ("TODO: Parse the
// actual checksums"); this keeps that scope.
var CSumItemTD = nstruct.MustStruct("CSumItem", []nstruct.FieldEntry{
	nstruct.Field(nstruct.Uint8(), "csum"),
}, nstruct.WithBase(ItemTD, nil, int64(ExtentCSumKey)))

// RootRefTD is an Item payload used for both forward and backward root
// references.
var RootRefTD = nstruct.MustStruct("RootRef", []nstruct.FieldEntry{
	nstruct.Field(nstruct.Uint64LE(), "dir_id"),
	nstruct.Field(nstruct.Uint64LE(), "sequence"),
	nstruct.Field(nstruct.Uint16LE(), "name_len"),
	nstruct.Darray(nstruct.Uint8(), "name", func(v *nstruct.Value) (int, error) {
		return int(v.Uint("name_len")), nil
	}),
}, nstruct.WithBase(ItemTD, nil, int64(RootRefKey)))

// hasGenerationV2Fields is RootItem's worked Optional predicate, lifted
// directly from the original's "if i.Generation == i.GenerationV2"
// guard around its post-subvol_uuids fields.
func hasGenerationV2Fields(v *nstruct.Value) (bool, error) {
	return v.Uint("generation") == v.Uint("generation_v2"), nil
}

// RootItemTD is an Item payload: a tree root pointer, plus (on
// filesystems new enough that generation and generation_v2 agree) its
// subvolume UUIDs and per-log transaction ids.
var RootItemTD = nstruct.MustStruct("RootItem", []nstruct.FieldEntry{
	nstruct.Field(inodeBareTD, "inode"),
	nstruct.Field(nstruct.Uint64LE(), "generation"),
	nstruct.Field(nstruct.Uint64LE(), "root_dir_id"),
	nstruct.Field(nstruct.Uint64LE(), "byte_nr"),
	nstruct.Field(nstruct.Uint64LE(), "byte_limit"),
	nstruct.Field(nstruct.Uint64LE(), "last_snapshot"),
	nstruct.Field(nstruct.Uint64LE(), "flags"),
	nstruct.Field(nstruct.Uint32LE(), "refs"),
	nstruct.Field(KeyTD, "drop_progress"),
	nstruct.Field(nstruct.Uint8(), "drop_level"),
	nstruct.Field(nstruct.Uint8(), "level"),
	nstruct.Field(nstruct.Uint64LE(), "generation_v2"),
	nstruct.Optional(uuidTD(), "uuid", hasGenerationV2Fields),
	nstruct.Optional(uuidTD(), "parent_uuid", hasGenerationV2Fields),
	nstruct.Optional(uuidTD(), "received_uuid", hasGenerationV2Fields),
	nstruct.Optional(nstruct.Uint64LE(), "c_trans_id", hasGenerationV2Fields),
	nstruct.Optional(nstruct.Uint64LE(), "o_trans_id", hasGenerationV2Fields),
	nstruct.Optional(nstruct.Uint64LE(), "s_trans_id", hasGenerationV2Fields),
	nstruct.Optional(nstruct.Uint64LE(), "r_trans_id", hasGenerationV2Fields),
	nstruct.Optional(nstruct.Array(nstruct.Uint64LE(), 8), "reserved", hasGenerationV2Fields),
}, nstruct.WithBase(ItemTD, nil, int64(RootItemKey)))

// LeafTD is a whole b-tree leaf: its header, promoted into the leaf's
// own namespace, followed by exactly header.nr_items items.
var LeafTD = nstruct.MustStruct("Leaf", []nstruct.FieldEntry{
	nstruct.Embed(HeaderTD),
	nstruct.Darray(ItemTD, "items", func(v *nstruct.Value) (int, error) {
		return int(v.Uint("nr_items")), nil
	}),
})

// ParseLeaf parses a single leaf from the start of buf.
func ParseLeaf(buf []byte) (*nstruct.Value, error) {
	v, _, err := LeafTD.Parse(buf, 0)
	return v, err
}
