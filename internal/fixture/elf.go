// Package fixture builds in-memory shared objects and package archives for tests.
package fixture

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"testing"
)

const (
	elfHeaderSize     = 64
	elfSectionHdrSize = 64
	elfDynEntrySize   = 16
)

// SharedObject returns a minimal little-endian x86-64 ELF shared object whose
// dynamic section lists needed as DT_NEEDED entries, in order.
func SharedObject(t testing.TB, needed ...string) []byte {
	t.Helper()

	dynstr := []byte{0}
	offsets := make([]uint64, len(needed))
	for i, name := range needed {
		offsets[i] = uint64(len(dynstr))
		dynstr = append(dynstr, name...)
		dynstr = append(dynstr, 0)
	}

	var dynamic bytes.Buffer
	for _, off := range offsets {
		mustWrite(t, &dynamic, elf.Dyn64{Tag: int64(elf.DT_NEEDED), Val: off})
	}
	mustWrite(t, &dynamic, elf.Dyn64{Tag: int64(elf.DT_NULL)})

	shstrtab := []byte("\x00.dynstr\x00.dynamic\x00.shstrtab\x00")
	const (
		nameDynstr   = 1
		nameDynamic  = 9
		nameShstrtab = 18
	)

	dynstrOff := uint64(elfHeaderSize)
	dynamicOff := align8(dynstrOff + uint64(len(dynstr)))
	shstrtabOff := dynamicOff + uint64(dynamic.Len())
	shOff := align8(shstrtabOff + uint64(len(shstrtab)))

	hdr := elf.Header64{
		Type:      uint16(elf.ET_DYN),
		Machine:   uint16(elf.EM_X86_64),
		Version:   uint32(elf.EV_CURRENT),
		Shoff:     shOff,
		Ehsize:    elfHeaderSize,
		Phentsize: 56,
		Shentsize: elfSectionHdrSize,
		Shnum:     4,
		Shstrndx:  3,
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	sections := []elf.Section64{
		{},
		{
			Name:      nameDynstr,
			Type:      uint32(elf.SHT_STRTAB),
			Flags:     uint64(elf.SHF_ALLOC),
			Off:       dynstrOff,
			Size:      uint64(len(dynstr)),
			Addralign: 1,
		},
		{
			Name:      nameDynamic,
			Type:      uint32(elf.SHT_DYNAMIC),
			Flags:     uint64(elf.SHF_ALLOC | elf.SHF_WRITE),
			Off:       dynamicOff,
			Size:      uint64(dynamic.Len()),
			Link:      1,
			Addralign: 8,
			Entsize:   elfDynEntrySize,
		},
		{
			Name:      nameShstrtab,
			Type:      uint32(elf.SHT_STRTAB),
			Off:       shstrtabOff,
			Size:      uint64(len(shstrtab)),
			Addralign: 1,
		},
	}

	var buf bytes.Buffer
	mustWrite(t, &buf, hdr)
	buf.Write(dynstr)
	pad(&buf, dynamicOff)
	buf.Write(dynamic.Bytes())
	buf.Write(shstrtab)
	pad(&buf, shOff)
	for _, s := range sections {
		mustWrite(t, &buf, s)
	}
	return buf.Bytes()
}

func mustWrite(t testing.TB, buf *bytes.Buffer, v any) {
	t.Helper()
	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		t.Fatalf("encoding ELF fixture: %v", err)
	}
}

func align8(n uint64) uint64 {
	return (n + 7) &^ 7
}

func pad(buf *bytes.Buffer, to uint64) {
	for uint64(buf.Len()) < to {
		buf.WriteByte(0)
	}
}
