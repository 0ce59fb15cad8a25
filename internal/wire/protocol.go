// Package wire implements the client's binary session protocol: handshake
// constants, the length-prefixed frame codec, and message encode/decode for
// every message family the receiver and sender exchange with the server
// (spec §4.A-§4.C, §6). Framing is fixed little-endian regardless of host,
// grounded on the teacher's call/webm.go convention of hand-rolled binary
// encoding via encoding/binary rather than a generated codec.
package wire

// Handshake constants (spec §6).
const (
	Hello           uint32 = 1357924680
	ProtocolVersion uint32 = 45
)

// Handshake response codes.
const (
	ProtocolOK           uint32 = 10000
	ClientProtocolTooOld uint32 = 10001
	ClientProtocolTooNew uint32 = 10002
	Goodbye              uint32 = 10010
)

// ConnectionType selects the purpose of a session at handshake time.
type ConnectionType uint32

const (
	ConnUpdates           ConnectionType = 500
	ConnUploadResource    ConnectionType = 501
	ConnDownloadResources ConnectionType = 502
	ConnScreenshotBot     ConnectionType = 504
	ConnUploadPhoto       ConnectionType = 506
)

// MsgType identifies a framed message after the handshake (spec §6).
type MsgType uint32

const (
	MsgAvatarCreated        MsgType = 1000
	MsgAvatarDestroyed      MsgType = 1001
	MsgAvatarTransform      MsgType = 1002
	MsgAvatarPerformGesture MsgType = 1003
	MsgAvatarStopGesture    MsgType = 1004
	MsgAvatarIsHere         MsgType = 1005
	MsgAvatarEnteredVehicle MsgType = 1006
	MsgAvatarExitedVehicle  MsgType = 1007

	MsgChatMessage MsgType = 2000

	MsgObjectCreated                  MsgType = 3000
	MsgObjectDestroyed                MsgType = 3001
	MsgObjectTransformUpdate          MsgType = 3002
	MsgObjectFullUpdate               MsgType = 3003
	MsgCreateObject                   MsgType = 3004
	MsgDestroyObject                  MsgType = 3005
	MsgObjectLightmapURLChanged       MsgType = 3010
	MsgObjectFlagsChanged             MsgType = 3011
	MsgObjectModelURLChanged          MsgType = 3012
	MsgObjectPhysicsOwnershipTaken    MsgType = 3013
	MsgObjectPhysicsTransformUpdate   MsgType = 3016
	MsgObjectContentChanged           MsgType = 3017
	MsgObjectInitialSend              MsgType = 3021
	MsgObjectQueryInAABB              MsgType = 3022
	MsgObjectInitialSendCompressed    MsgType = 3023
	MsgSummonObject                    MsgType = 3030

	MsgParcelCreated     MsgType = 3100
	MsgParcelFullUpdate  MsgType = 3101
	MsgParcelInitialSendCompressed MsgType = 3102

	MsgUserUsedObject          MsgType = 3500
	MsgUserTouchedObject       MsgType = 3501
	MsgUserMovedNearToObject   MsgType = 3502
	MsgUserMovedAwayFromObject MsgType = 3503
	MsgUserEnteredParcel       MsgType = 3504
	MsgUserExitedParcel        MsgType = 3505

	MsgLODChunkInitialSend MsgType = 3900
	MsgLODChunkUpdated     MsgType = 3901

	MsgMapTilesResult MsgType = 3950

	MsgLoggedIn             MsgType = 8000
	MsgLoggedOut            MsgType = 8001
	MsgSignedUp             MsgType = 8002
	MsgClientProtocolTooOld MsgType = 8003
	MsgChangeToDifferentWorld MsgType = 8004
	MsgInfoMessage          MsgType = 8005

	MsgKeepAlive      MsgType = 13000
	MsgTimeSyncMessage MsgType = 13001

	MsgScreenshotRequest  MsgType = 11001
	MsgScreenshotResponse MsgType = 11002
	MsgScreenshotError    MsgType = 11003

	MsgPhotoUploadRequest MsgType = 14000
	MsgPhotoUploadResult  MsgType = 14001

	MsgCyberspaceGoodbye MsgType = 20000
	MsgGetFiles          MsgType = 20001
	MsgUploadAllowed      MsgType = 20002
	MsgErrorMessage       MsgType = 20003
)

// maxStringBytes bounds a length-prefixed string field (spec §6).
const maxStringBytes = 10 * 1024

// frameHeaderLen is the byte length of [u32 type][u32 total_len].
const frameHeaderLen = 8
