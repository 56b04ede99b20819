// Package vision opens the door for authorised vehicles.
//
// Each poll grabs one frame from the camera and runs it through a cheap
// frame-difference motion detector. Only frames with motion, and at most
// once per cooldown period, are sent to the plate recogniser. The best
// recognised line of text is cleaned and looked up in the plate store.
package vision
