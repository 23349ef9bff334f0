// DeskDisplay Core
// Copyright (c) 2026 The DeskDisplay Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of DeskDisplay Core.
//
// DeskDisplay Core is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// DeskDisplay Core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with DeskDisplay Core.  If not, see <http://www.gnu.org/licenses/>.

//go:build windows

package media

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"syscall"
	"time"
	"unsafe"

	"github.com/go-ole/go-ole"
	"github.com/rs/zerolog/log"
)

const (
	sessionManagerClass = "Windows.Media.Control.GlobalSystemMediaTransportControlsSessionManager"
	dataReaderClass     = "Windows.Storage.Streams.DataReader"

	roInitMultithreaded = 1
	sFalse              = 0x00000001
	rpcEChangedMode     = 0x80010106

	asyncPollInterval = 10 * time.Millisecond

	// AsyncStatus values
	asyncStarted   = 0
	asyncCompleted = 1
	asyncCanceled  = 2
)

// vtable slots, counted from IUnknown (0-2) and IInspectable (3-5)
const (
	slotQueryInterface = 0

	slotRequestAsync               = 6 // ISessionManagerStatics
	slotGetCurrentSession          = 6 // ISessionManager
	slotTryGetMediaPropertiesAsync = 7 // ISession
	slotTitle                      = 6 // IMediaProperties
	slotArtist                     = 9
	slotThumbnail                  = 15
	slotOpenReadAsync              = 6 // IRandomAccessStreamReference
	slotStreamSize                 = 6 // IRandomAccessStream
	slotCreateDataReader           = 6 // IDataReaderFactory
	slotReadBytes                  = 14
	slotLoadAsync                  = 29
	slotAsyncStatus                = 7 // IAsyncInfo
	slotAsyncErrorCode             = 8
	slotAsyncCancel                = 9
	slotGetResults                 = 8 // IAsyncOperation
)

var (
	iidSessionManagerStatics = ole.NewGUID("{2050C4EE-11A0-57DE-AED7-C97C70338245}")
	iidAsyncInfo             = ole.NewGUID("{00000036-0000-0000-C000-000000000046}")
	iidRandomAccessStream    = ole.NewGUID("{905A0FE1-BC53-11DF-8C49-001E4FC686DA}")
	iidInputStream           = ole.NewGUID("{905A0FE2-BC53-11DF-8C49-001E4FC686DA}")
	iidDataReaderFactory     = ole.NewGUID("{D7527847-57DA-4E15-914C-06806699A098}")
)

var errAsyncCanceled = errors.New("media session request was canceled")

func newPlatformProvider() Provider {
	return &SystemSession{reader: winrtSession{}}
}

// winrtSession reads the Windows global media transport controls session.
type winrtSession struct{}

func (winrtSession) Current(ctx context.Context) (SessionInfo, bool, error) {
	// WinRT apartments are per OS thread
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := ole.RoInitialize(roInitMultithreaded); err != nil {
		var oleErr *ole.OleError
		switch {
		case errors.As(err, &oleErr) && oleErr.Code() == sFalse:
			defer ole.CoUninitialize()
		case errors.As(err, &oleErr) && oleErr.Code() == rpcEChangedMode:
		default:
			return SessionInfo{}, false, fmt.Errorf("failed to initialize windows runtime: %w", err)
		}
	} else {
		defer ole.CoUninitialize()
	}

	statics, err := ole.RoGetActivationFactory(sessionManagerClass, iidSessionManagerStatics)
	if err != nil {
		return SessionInfo{}, false, fmt.Errorf("failed to get session manager: %w", err)
	}
	defer statics.Release()

	manager, err := callAsyncObject(ctx, statics, slotRequestAsync)
	if err != nil {
		return SessionInfo{}, false, fmt.Errorf("failed to request session manager: %w", err)
	}
	defer manager.Release()

	session, err := callObject(manager, slotGetCurrentSession)
	if err != nil {
		return SessionInfo{}, false, fmt.Errorf("failed to get current session: %w", err)
	}
	if session == nil {
		return SessionInfo{}, false, nil
	}
	defer session.Release()

	props, err := callAsyncObject(ctx, session, slotTryGetMediaPropertiesAsync)
	if err != nil {
		return SessionInfo{}, false, fmt.Errorf("failed to read media properties: %w", err)
	}
	defer props.Release()

	var info SessionInfo
	if info.Title, err = callString(props, slotTitle); err != nil {
		return SessionInfo{}, false, fmt.Errorf("failed to read title: %w", err)
	}
	if info.Artist, err = callString(props, slotArtist); err != nil {
		return SessionInfo{}, false, fmt.Errorf("failed to read artist: %w", err)
	}

	thumbRef, err := callObject(props, slotThumbnail)
	if err != nil {
		log.Debug().Err(err).Msg("failed to get thumbnail reference")
		return info, true, nil
	}
	if thumbRef == nil {
		return info, true, nil
	}
	defer thumbRef.Release()

	if info.Artwork, err = readThumbnail(ctx, thumbRef); err != nil {
		log.Debug().Err(err).Msg("failed to read album art")
	}
	return info, true, nil
}

func readThumbnail(ctx context.Context, ref *ole.IInspectable) ([]byte, error) {
	stream, err := callAsyncObject(ctx, ref, slotOpenReadAsync)
	if err != nil {
		return nil, err
	}
	defer stream.Release()

	random, err := queryInterface(stream, iidRandomAccessStream)
	if err != nil {
		return nil, err
	}
	defer random.Release()

	var size uint64
	if err := vcall(random, slotStreamSize, uintptr(unsafe.Pointer(&size))); err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, nil
	}
	if size > maxArtworkBytes {
		return nil, fmt.Errorf("thumbnail is %d bytes, limit is %d", size, maxArtworkBytes)
	}

	input, err := queryInterface(stream, iidInputStream)
	if err != nil {
		return nil, err
	}
	defer input.Release()

	factory, err := ole.RoGetActivationFactory(dataReaderClass, iidDataReaderFactory)
	if err != nil {
		return nil, err
	}
	defer factory.Release()

	reader, err := callObject(factory, slotCreateDataReader, uintptr(unsafe.Pointer(input)))
	if err != nil {
		return nil, err
	}
	defer reader.Release()

	var load *ole.IInspectable
	if err := vcall(reader, slotLoadAsync, uintptr(uint32(size)), uintptr(unsafe.Pointer(&load))); err != nil {
		return nil, err
	}
	defer load.Release()
	if err := wait(ctx, load); err != nil {
		return nil, err
	}
	var loaded uint32
	if err := vcall(load, slotGetResults, uintptr(unsafe.Pointer(&loaded))); err != nil {
		return nil, err
	}
	if loaded == 0 {
		return nil, nil
	}

	data := make([]byte, loaded)
	if err := vcall(reader, slotReadBytes, uintptr(loaded), uintptr(unsafe.Pointer(&data[0]))); err != nil {
		return nil, err
	}
	return data, nil
}

// vcall invokes the method in slot of obj's vtable.
func vcall(obj *ole.IInspectable, slot int, args ...uintptr) error {
	vtbl := unsafe.Pointer(obj.RawVTable)
	fn := *(*uintptr)(unsafe.Add(vtbl, slot*int(unsafe.Sizeof(uintptr(0)))))
	hr, _, _ := syscall.SyscallN(fn, append([]uintptr{uintptr(unsafe.Pointer(obj))}, args...)...)
	if hr != ole.S_OK {
		return ole.NewError(hr)
	}
	return nil
}

func callObject(obj *ole.IInspectable, slot int, args ...uintptr) (*ole.IInspectable, error) {
	var out *ole.IInspectable
	if err := vcall(obj, slot, append(args, uintptr(unsafe.Pointer(&out)))...); err != nil {
		return nil, err
	}
	return out, nil
}

func callString(obj *ole.IInspectable, slot int) (string, error) {
	var h ole.HString
	if err := vcall(obj, slot, uintptr(unsafe.Pointer(&h))); err != nil {
		return "", err
	}
	if h == 0 {
		return "", nil
	}
	defer func() { _ = ole.DeleteHString(h) }()
	return h.String(), nil
}

func queryInterface(obj *ole.IInspectable, iid *ole.GUID) (*ole.IInspectable, error) {
	return callObject(obj, slotQueryInterface, uintptr(unsafe.Pointer(iid)))
}

// callAsyncObject calls a method returning IAsyncOperation<T> for an
// object T, waits for it and returns the result.
func callAsyncObject(ctx context.Context, obj *ole.IInspectable, slot int) (*ole.IInspectable, error) {
	op, err := callObject(obj, slot)
	if err != nil {
		return nil, err
	}
	defer op.Release()

	if err := wait(ctx, op); err != nil {
		return nil, err
	}
	return callObject(op, slotGetResults)
}

// wait polls an async operation until it finishes or ctx is done, in which
// case the operation is cancelled.
func wait(ctx context.Context, op *ole.IInspectable) error {
	info, err := queryInterface(op, iidAsyncInfo)
	if err != nil {
		return err
	}
	defer info.Release()

	ticker := time.NewTicker(asyncPollInterval)
	defer ticker.Stop()

	for {
		var status int32
		if err := vcall(info, slotAsyncStatus, uintptr(unsafe.Pointer(&status))); err != nil {
			return err
		}
		switch status {
		case asyncCompleted:
			return nil
		case asyncStarted:
		case asyncCanceled:
			return errAsyncCanceled
		default:
			var code uint32
			if err := vcall(info, slotAsyncErrorCode, uintptr(unsafe.Pointer(&code))); err != nil {
				return err
			}
			return ole.NewError(uintptr(code))
		}

		select {
		case <-ctx.Done():
			_ = vcall(info, slotAsyncCancel)
			return fmt.Errorf("media session request interrupted: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
