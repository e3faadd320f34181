package platform

import (
	"debug/elf"
	"debug/macho"
	"debug/pe"
	"fmt"

	"github.com/adamancini/autodeploy/internal/types"
)

// ExecutableBitness reads the bitness of a PE, ELF or Mach-O binary from its header.
func ExecutableBitness(path string) (types.Bitness, error) {
	if f, err := pe.Open(path); err == nil {
		defer f.Close()
		switch f.FileHeader.Machine {
		case pe.IMAGE_FILE_MACHINE_AMD64, pe.IMAGE_FILE_MACHINE_ARM64, pe.IMAGE_FILE_MACHINE_IA64:
			return types.Bitness64, nil
		case pe.IMAGE_FILE_MACHINE_I386, pe.IMAGE_FILE_MACHINE_ARMNT:
			return types.Bitness32, nil
		}
		return types.BitnessUnknown, fmt.Errorf("unknown PE machine 0x%x in %s", f.FileHeader.Machine, path)
	}
	if f, err := elf.Open(path); err == nil {
		defer f.Close()
		switch f.Class {
		case elf.ELFCLASS64:
			return types.Bitness64, nil
		case elf.ELFCLASS32:
			return types.Bitness32, nil
		}
		return types.BitnessUnknown, fmt.Errorf("unknown ELF class in %s", path)
	}
	if f, err := macho.Open(path); err == nil {
		defer f.Close()
		switch f.Cpu {
		case macho.CpuAmd64, macho.CpuArm64, macho.CpuPpc64:
			return types.Bitness64, nil
		case macho.Cpu386, macho.CpuArm, macho.CpuPpc:
			return types.Bitness32, nil
		}
		return types.BitnessUnknown, fmt.Errorf("unknown Mach-O cpu in %s", path)
	}
	if _, err := macho.OpenFat(path); err == nil {
		// Universal binaries run natively as 64-bit on current macOS.
		return types.Bitness64, nil
	}
	return types.BitnessUnknown, fmt.Errorf("unrecognized executable format: %s", path)
}
