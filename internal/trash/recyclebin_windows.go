//go:build windows && (amd64 || arm64)

package trash

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// SHFileOperationW operation and flags.
const (
	foDelete          = 0x0003
	fofSilent         = 0x0004
	fofNoConfirmation = 0x0010
	fofAllowUndo      = 0x0040
	fofNoErrorUI      = 0x0400
)

// shFileOpStruct mirrors SHFILEOPSTRUCTW. The 32-bit ABI packs this struct
// differently, hence the build constraint.
type shFileOpStruct struct {
	hwnd                  windows.HWND
	wFunc                 uint32
	pFrom                 *uint16
	pTo                   *uint16
	fFlags                uint16
	fAnyOperationsAborted int32
	hNameMappings         uintptr
	lpszProgressTitle     *uint16
}

var procSHFileOperationW = windows.NewLazySystemDLL("shell32.dll").NewProc("SHFileOperationW")

func init() {
	recycleBin = sendToRecycleBin
}

// sendToRecycleBin deletes abs with FOF_ALLOWUNDO, which the shell turns
// into a move to the Recycle Bin.
func sendToRecycleBin(abs string) error {
	if err := procSHFileOperationW.Find(); err != nil {
		return fmt.Errorf("load SHFileOperationW: %w", err)
	}

	from, err := windows.UTF16FromString(abs)
	if err != nil {
		return fmt.Errorf("encode path: %w", err)
	}
	// pFrom is a list terminated by an empty string.
	from = append(from, 0)

	op := shFileOpStruct{
		wFunc:  foDelete,
		pFrom:  &from[0],
		fFlags: fofAllowUndo | fofNoConfirmation | fofSilent | fofNoErrorUI,
	}
	r, _, _ := procSHFileOperationW.Call(uintptr(unsafe.Pointer(&op)))
	if r != 0 {
		return fmt.Errorf("SHFileOperationW failed with code %#x", r)
	}
	if op.fAnyOperationsAborted != 0 {
		return errors.New("SHFileOperationW aborted")
	}
	return nil
}
