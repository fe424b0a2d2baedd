// Copyright (C) 2025 vaultsync contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package exportimport

// QRCodec renders an otpauth:// URI to a scannable image and reads one
// back. A genuine external collaborator: QR generation and camera/image
// decoding are host platform concerns, so no default implementation ships
// here.
type QRCodec interface {
	Encode(uri string) (image []byte, err error)
	Decode(image []byte) (uri string, err error)
}
