package version

// Version is updated automatically as part of the build process, and is
// the ground source of truth for the current process's build version.
//
// DO NOT EDIT
var Version = undefinedVersion

const undefinedVersion = "dev-undefined"
